// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kindle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyWindow      = 40 // bytes of the rendering token used as key material
	aadLength      = 9  // bytes of key material authenticated as additional data
	kdfIterations  = 1000
	derivedKeyLen  = 16
	saltEncodedLen = 24 // base64 chars of salt at the start of the payload
	ivEncodedLen   = 24 // base64 chars of IV following the salt
)

// decryptImages decrypts every image in place. Page images are AES-GCM
// encrypted with a key derived from a window of the rendering token selected
// by the token expiry.
func decryptImages(images map[string][]byte, auth Auth) error {
	if len(images) == 0 {
		return nil
	}

	offset := int(auth.ExpiresAt % 60)
	if offset+keyWindow > len(auth.Token) {
		return fmt.Errorf("rendering token too short for key derivation")
	}
	keyMaterial := []byte(auth.Token[offset : offset+keyWindow])

	for name, payload := range images {
		plain, err := decryptImage(payload, keyMaterial)
		if err != nil {
			return fmt.Errorf("decrypting image %s: %w", name, err)
		}
		images[name] = plain
	}
	return nil
}

// decryptImage decrypts one image payload. The payload is three base64
// segments: salt, IV, then ciphertext with the GCM tag trailing.
func decryptImage(payload, keyMaterial []byte) ([]byte, error) {
	if len(payload) < saltEncodedLen+ivEncodedLen {
		return nil, fmt.Errorf("payload too short (%d bytes)", len(payload))
	}

	salt, err := base64.StdEncoding.DecodeString(string(payload[:saltEncodedLen]))
	if err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(string(payload[saltEncodedLen : saltEncodedLen+ivEncodedLen]))
	if err != nil {
		return nil, fmt.Errorf("decoding IV: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(string(payload[saltEncodedLen+ivEncodedLen:]))
	if err != nil {
		return nil, fmt.Errorf("decoding ciphertext: %w", err)
	}

	key := pbkdf2.Key(keyMaterial, salt, kdfIterations, derivedKeyLen, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, iv, data, keyMaterial[:aadLength])
	if err != nil {
		return nil, fmt.Errorf("AES-GCM open: %w", err)
	}
	return plain, nil
}
