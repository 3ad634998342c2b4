// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teticio/kindle2pdf/internal/browser"
	"github.com/teticio/kindle2pdf/internal/capture"
	"github.com/teticio/kindle2pdf/internal/httputil"
	"github.com/teticio/kindle2pdf/internal/kindle"
	"github.com/teticio/kindle2pdf/internal/library"
	"github.com/teticio/kindle2pdf/internal/remarkable"
	"github.com/teticio/kindle2pdf/internal/render"
	"github.com/teticio/kindle2pdf/pkg/types"
)

func runRender(cmd *cobra.Command, args []string) error {
	asin := args[0]
	cfg := loadConfig()

	saveMock, _ := cmd.Flags().GetBool("save-mock")
	loadMock, _ := cmd.Flags().GetBool("load-mock")
	if saveMock && loadMock {
		return fmt.Errorf("--save-mock and --load-mock are mutually exclusive")
	}
	switch {
	case saveMock:
		cfg.Capture.Mode = types.CaptureRecord
	case loadMock:
		cfg.Capture.Mode = types.CaptureReplay
	}

	var transport http.RoundTripper
	if cfg.Capture.Mode != types.CaptureOff {
		tr, err := capture.New(cfg.Capture, nil)
		if err != nil {
			return err
		}
		defer tr.Close()
		transport = tr
		// Recorded request sequences must line up between runs.
		cfg.Render.AlwaysRefresh = true
	}
	client := httputil.NewClient(cfg.Render.HTTPConfig, transport)

	var src browser.CookieSource = browser.ChromeSource{}
	if cfg.Capture.Mode == types.CaptureReplay {
		// Replay runs never touch the browser profile; recorded responses
		// have session identifiers redacted anyway.
		src = browser.StaticSource{{Name: "session-id", Value: "mock-session"}}
	}

	ctx := cmd.Context()
	sess, err := kindle.StartSession(ctx, client, src, asin, cfg.Render, os.Stdout)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = render.SanitizeFilename(sess.Title) + ".pdf"
	}

	pages, err := render.Assemble(sess.Pages(ctx), sess.Title, sess.EndPosition, out, cfg.Render, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Printf("PDF saved to %q (%d pages)\n", out, pages)

	upload, _ := cmd.Flags().GetBool("remarkable")
	if err := recordBook(cfg.Library, types.Book{
		ASIN:       asin,
		Title:      sess.Title,
		Pages:      pages,
		PDFPath:    out,
		RenderedAt: time.Now(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not update library index: %v\n", err)
	}

	if !upload {
		return nil
	}

	otc, _ := cmd.Flags().GetString("otc")
	rclient := httputil.NewClient(cfg.Remarkable.HTTPConfig, nil)
	reg, err := remarkable.EnsurePaired(ctx, rclient, cfg.Remarkable, otc, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}
	if _, err := remarkable.NewClient(rclient, cfg.Remarkable).Upload(ctx, reg, out, sess.Title); err != nil {
		return err
	}
	fmt.Printf("%q uploaded to reMarkable\n", sess.Title)

	if err := markUploaded(cfg.Library, asin); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not update library index: %v\n", err)
	}
	return nil
}

func recordBook(cfg types.LibraryConfig, b types.Book) error {
	store, err := library.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(b)
}

func markUploaded(cfg types.LibraryConfig, asin string) error {
	store, err := library.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.MarkUploaded(asin)
}
