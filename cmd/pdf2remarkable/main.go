// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the pdf2remarkable CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teticio/kindle2pdf/internal/httputil"
	"github.com/teticio/kindle2pdf/internal/remarkable"
	"github.com/teticio/kindle2pdf/internal/render"
	"github.com/teticio/kindle2pdf/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pdf2remarkable <path-to-pdf>",
	Short: "Upload PDFs to reMarkable from the CLI",
	Long: `pdf2remarkable uploads a PDF into the reMarkable Cloud document store.
On first use it pairs this machine as a device: fetch a one-time code from
the reMarkable website and supply it with --otc or at the prompt. The device
registration is kept in ~/.pdf2remarkable; delete that file to re-pair.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.Flags().String("otc", "", "one-time pairing code (prompted when pairing is needed)")
	rootCmd.Flags().String("token-path", "", "device registration file (default: ~/.pdf2remarkable)")
	rootCmd.Flags().Duration("timeout", 5*time.Minute, "HTTP request timeout")
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]

	tokenPath, _ := cmd.Flags().GetString("token-path")
	if tokenPath == "" {
		var err error
		tokenPath, err = remarkable.DefaultTokenPath()
		if err != nil {
			return err
		}
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg := types.RemarkableConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: "pdf2remarkable/" + version,
		},
		TokenPath:  tokenPath,
		DeviceDesc: "browser-chrome",
	}

	ctx := cmd.Context()
	client := httputil.NewClient(cfg.HTTPConfig, nil)

	otc, _ := cmd.Flags().GetString("otc")
	reg, err := remarkable.EnsurePaired(ctx, client, cfg, otc, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	title := render.SanitizeFilename(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	pages, err := remarkable.NewClient(client, cfg).Upload(ctx, reg, path, title)
	if err != nil {
		return err
	}
	fmt.Printf("%q uploaded to reMarkable (%d pages)\n", title, pages)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
