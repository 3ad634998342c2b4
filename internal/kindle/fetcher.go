// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kindle

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// renderURL is the page rendering endpoint. Var so tests can override it.
var renderURL = "https://read.amazon.com/renderer/render"

// ErrEndOfBook is returned by PageStream.Next once the whole book has been
// fetched. It is a normal termination signal, not a failure.
var ErrEndOfBook = errors.New("end of book")

// ErrPageOrder indicates the backend returned pages out of order or with
// duplicate positions. The stream does not reorder silently; callers treat
// this as undecodable content.
var ErrPageOrder = errors.New("pages out of order")

// Page is one rendered book page: laid-out children plus the decrypted
// images and glyph fonts they reference. Immutable once fetched.
type Page struct {
	// Index is the 0-based position of the page in the stream. Indices are
	// strictly increasing with no gaps.
	Index int

	// EndPosition is the book position id of the last content on the page.
	EndPosition int

	// Children are the laid-out elements in draw order.
	Children []Child

	// Images maps image references to decrypted image bytes.
	Images map[string][]byte

	// Fonts maps font keys to glyph outline fonts.
	Fonts map[string]Font
}

// Child is one laid-out element of a page: a glyph run or an image.
type Child struct {
	Type            string    `json:"type"` // "run" or "image"
	Transform       []float64 `json:"transform"`
	Rect            Rect      `json:"rect"`
	FontKey         string    `json:"fontKey"`
	FontSize        float64   `json:"fontSize"`
	Glyphs          []int     `json:"glyphs"`
	XPosition       []float64 `json:"xPosition"`
	TextColor       string    `json:"textColor"`
	ImageReference  string    `json:"imageReference"`
	StartPositionID *int      `json:"startPositionId"`
	Link            *Link     `json:"link"`
}

// Link is an internal link to another book position.
type Link struct {
	LinkPositionID int `json:"linkPositionId"`
}

// Rect is the untransformed bounding box of a child.
type Rect struct {
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Font is a glyph outline font from glyphs.json.
type Font struct {
	FontKey    string           `json:"fontKey"`
	UnitsPerEm float64          `json:"unitsPerEm"`
	Glyphs     map[string]Glyph `json:"glyphs"`
}

// Glyph is a single glyph outline.
type Glyph struct {
	Path string `json:"path"`
}

// manifest describes where unbundled page images live on the CDN.
type manifest struct {
	CDN struct {
		BaseURL       string `json:"baseUrl"`
		AuthParameter string `json:"authParameter"`
	} `json:"cdn"`
	CDNResources []struct {
		URL string `json:"url"`
	} `json:"cdnResources"`
}

// pageData is the raw per-page layout record from page_data_0_*.json.
type pageData struct {
	EndPositionID int     `json:"endPositionId"`
	Children      []Child `json:"children"`
}

// PageStream is a lazy, finite, forward-only sequence of pages. A stream is
// restartable only from zero: call Session.Pages again to refetch.
type PageStream struct {
	s   *Session
	ctx context.Context

	buf       []*Page
	nextIndex int
	pos       int // next startingPosition to request
	lastEnd   int // last end position seen, for ordering checks
	done      bool
}

// Pages returns a fresh page stream starting at position 0.
func (s *Session) Pages(ctx context.Context) *PageStream {
	return &PageStream{s: s, ctx: ctx, lastEnd: -1}
}

// Next returns the next page, ErrEndOfBook after the last page, or an error.
// Once an error other than ErrEndOfBook is returned the stream is dead.
func (ps *PageStream) Next() (*Page, error) {
	for len(ps.buf) == 0 {
		if ps.done {
			return nil, ErrEndOfBook
		}
		if err := ps.fetchBatch(); err != nil {
			return nil, err
		}
	}
	page := ps.buf[0]
	ps.buf = ps.buf[1:]
	return page, nil
}

// fetchBatch requests the next run of pages from the renderer and fills the
// buffer. The batch size trades round trips against response size; the
// backend caps it anyway.
func (ps *PageStream) fetchBatch() error {
	s := ps.s
	if s.cfg.AlwaysRefresh || s.expiringSoon(time.Now().UnixMilli()) {
		if err := s.refresh(ps.ctx); err != nil {
			return err
		}
	}

	batch := s.cfg.BatchPages
	if batch <= 0 {
		batch = 6
	}

	jsons, images, err := ps.render(ps.pos, batch)
	if err != nil {
		return err
	}

	var pages []pageData
	for name, raw := range jsons {
		if strings.HasPrefix(name, "page_data_0_") {
			if err := json.Unmarshal(raw, &pages); err != nil {
				return fmt.Errorf("parsing %s: %w", name, err)
			}
			break
		}
	}
	if len(pages) == 0 {
		return fmt.Errorf("renderer returned no pages at position %d", ps.pos)
	}

	fonts := make(map[string]Font)
	if raw, ok := jsons["glyphs.json"]; ok {
		var fontList []Font
		if err := json.Unmarshal(raw, &fontList); err != nil {
			return fmt.Errorf("parsing glyphs.json: %w", err)
		}
		for _, f := range fontList {
			fonts[f.FontKey] = f
		}
	}

	if len(images) == 0 {
		if raw, ok := jsons["manifest.json"]; ok {
			var m manifest
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("parsing manifest.json: %w", err)
			}
			images, err = ps.downloadImages(&m)
			if err != nil {
				return err
			}
		}
	}
	if err := decryptImages(images, s.auth); err != nil {
		return err
	}

	for _, pd := range pages {
		if pd.EndPositionID <= ps.lastEnd {
			return fmt.Errorf("%w: position %d after %d", ErrPageOrder, pd.EndPositionID, ps.lastEnd)
		}
		ps.lastEnd = pd.EndPositionID
		ps.buf = append(ps.buf, &Page{
			Index:       ps.nextIndex,
			EndPosition: pd.EndPositionID,
			Children:    pd.Children,
			Images:      images,
			Fonts:       fonts,
		})
		ps.nextIndex++
	}

	ps.pos = ps.lastEnd + 1
	if ps.pos > s.EndPosition {
		ps.done = true
	}
	return nil
}

// render performs one renderer request and unpacks the TAR response into
// JSON members and bundled image assets.
func (ps *PageStream) render(startPos, numPages int) (map[string]json.RawMessage, map[string][]byte, error) {
	s := ps.s
	cfg := s.cfg

	params := url.Values{
		"version":           {"3.0"},
		"asin":              {s.ASIN},
		"contentType":       {"FullBook"},
		"revision":          {s.Revision},
		"fontFamily":        {"Bookerly"},
		"fontSize":          {strconv.Itoa(cfg.FontSize)},
		"lineHeight":        {"1.4"},
		"dpi":               {strconv.Itoa(cfg.DPI)},
		"height":            {strconv.Itoa(int(cfg.PageHeight * float64(cfg.DPI) / 72))},
		"width":             {strconv.Itoa(int(cfg.PageWidth * float64(cfg.DPI) / 72))},
		"marginBottom":      {strconv.Itoa(int(cfg.MarginBottom * 72))},
		"marginLeft":        {strconv.Itoa(int(cfg.MarginLeft * 72))},
		"marginRight":       {strconv.Itoa(int(cfg.MarginRight * 72))},
		"marginTop":         {strconv.Itoa(int(cfg.MarginTop * 72))},
		"maxNumberColumns":  {"1"},
		"theme":             {"default"},
		"locationMap":       {"true"},
		"packageType":       {"TAR"},
		"encryptionVersion": {"NONE"},
		"numPage":           {strconv.Itoa(numPages)},
		"skipPageCount":     {"0"},
		"startingPosition":  {strconv.Itoa(startPos)},
		// Bundling does not work for all books; images are fetched from the
		// CDN manifest instead.
		"bundleImages": {"false"},
		"token":        {s.auth.Token},
	}

	req, err := s.newRequest(ps.ctx, renderURL, params)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-adp-session-token", s.adpToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("rendering pages at %d: %w", startPos, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil, &AuthenticationError{Reason: fmt.Sprintf("renderer returned HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("renderer returned HTTP %d at position %d", resp.StatusCode, startPos)
	}

	jsons := make(map[string]json.RawMessage)
	images := make(map[string][]byte)

	tr := tar.NewReader(resp.Body)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading renderer TAR: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, fmt.Errorf("reading TAR member %s: %w", hdr.Name, err)
		}
		switch {
		case strings.HasSuffix(hdr.Name, ".json"):
			jsons[hdr.Name] = content
		case strings.HasPrefix(hdr.Name, "assets/"):
			images[strings.TrimPrefix(hdr.Name, "assets/")] = content
		}
	}

	return jsons, images, nil
}

// downloadImages fetches unbundled page images from the CDN listed in the
// manifest. A single failed image is reported and skipped, matching the
// renderer's own tolerance for missing assets.
func (ps *PageStream) downloadImages(m *manifest) (map[string][]byte, error) {
	s := ps.s

	params, err := url.ParseQuery(m.CDN.AuthParameter)
	if err != nil {
		return nil, fmt.Errorf("parsing CDN auth parameter: %w", err)
	}
	params.Set("token", s.auth.Token)
	params.Set("expiration", strconv.FormatInt(s.auth.ExpiresAt, 10))

	images := make(map[string][]byte)
	for _, res := range m.CDNResources {
		req, err := http.NewRequestWithContext(ps.ctx, http.MethodGet,
			m.CDN.BaseURL+"/"+res.URL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating CDN request: %w", err)
		}
		req.Header.Set("User-Agent", s.cfg.UserAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("downloading image %s: %w", res.URL, err)
		}

		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(s.w, "warning: failed to download image %s (HTTP %d)\n", res.URL, resp.StatusCode)
			resp.Body.Close()
			continue
		}

		content, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading image %s: %w", res.URL, err)
		}
		images[res.URL] = content
	}
	return images, nil
}
