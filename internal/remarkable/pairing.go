// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package remarkable

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teticio/kindle2pdf/internal/httputil"
	"github.com/teticio/kindle2pdf/pkg/types"
)

// nowFunc returns the current time. Tests freeze it.
var nowFunc = time.Now

// PairURL is where users fetch a one-time pairing code.
var PairURL = "https://my.remarkable.com/device/browser/connect"

// deviceRegisterURL exchanges a one-time code for a device token. Var so
// tests can substitute an httptest server.
var deviceRegisterURL = "https://webapp.cloud.remarkable.com/token/json/2/device/new"

// PairingState tracks the device pairing state machine.
type PairingState int

const (
	// StateUnpaired means no registration file exists.
	StateUnpaired PairingState = iota

	// StatePairing means pairing has started but no device token has been
	// persisted. A rejected one-time code leaves the machine here.
	StatePairing

	// StatePaired means a device token is persisted and loadable.
	StatePaired
)

func (s PairingState) String() string {
	switch s {
	case StateUnpaired:
		return "unpaired"
	case StatePairing:
		return "pairing"
	case StatePaired:
		return "paired"
	default:
		return fmt.Sprintf("PairingState(%d)", int(s))
	}
}

// Pairer drives the Unpaired -> Pairing -> Paired state machine against the
// reMarkable Cloud.
type Pairer struct {
	client *http.Client
	cfg    types.RemarkableConfig

	state PairingState
	reg   *Registration
}

// NewPairer loads any existing registration and reports the starting state.
func NewPairer(client *http.Client, cfg types.RemarkableConfig) (*Pairer, error) {
	p := &Pairer{client: client, cfg: cfg, state: StateUnpaired}

	reg, err := LoadRegistration(cfg.TokenPath)
	switch {
	case err == nil:
		p.reg = reg
		p.state = StatePaired
	case errors.Is(err, ErrNotPaired):
		// Stay unpaired.
	default:
		return nil, err
	}
	return p, nil
}

// State returns the current pairing state.
func (p *Pairer) State() PairingState { return p.state }

// Registration returns the loaded registration, or nil before pairing.
func (p *Pairer) Registration() *Registration { return p.reg }

// Pair exchanges the one-time code for a device token and persists the
// registration. A rejected code returns *PairingError, writes nothing, and
// leaves the state at Pairing so the operator can retry with a fresh code.
func (p *Pairer) Pair(ctx context.Context, otc string) (*Registration, error) {
	p.state = StatePairing

	desc := p.cfg.DeviceDesc
	if desc == "" {
		desc = "browser-chrome"
	}
	deviceID := uuid.NewString()
	payload, err := json.Marshal(map[string]string{
		"code":       strings.TrimSpace(otc),
		"deviceID":   deviceID,
		"deviceDesc": desc,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding pairing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deviceRegisterURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating pairing request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &PairingError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httputil.DrainClose(resp.Body)
		return nil, &PairingError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &PairingError{Err: err}
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return nil, &PairingError{Err: errors.New("empty device token in response")}
	}

	reg := &Registration{
		DeviceToken: token,
		DeviceID:    deviceID,
		DeviceDesc:  desc,
		PairedAt:    nowFunc(),
	}
	if err := SaveRegistration(reg, p.cfg.TokenPath); err != nil {
		return nil, err
	}

	p.reg = reg
	p.state = StatePaired
	return reg, nil
}

// EnsurePaired returns the persisted registration, pairing interactively
// when none exists. otc is used when non-empty; otherwise the code is read
// from in after directing the user to PairURL on out.
func EnsurePaired(ctx context.Context, client *http.Client, cfg types.RemarkableConfig, otc string, in io.Reader, out io.Writer) (*Registration, error) {
	pairer, err := NewPairer(client, cfg)
	if err != nil {
		return nil, err
	}
	if pairer.State() == StatePaired {
		return pairer.Registration(), nil
	}

	if otc == "" {
		fmt.Fprintf(out, "Please visit %s and paste your one-time code: ", PairURL)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("reading one-time code: %w", err)
		}
		otc = strings.TrimSpace(line)
	}
	if otc == "" {
		return nil, &PairingError{Err: errors.New("no one-time code provided")}
	}

	return pairer.Pair(ctx, otc)
}
