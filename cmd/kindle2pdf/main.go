// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the kindle2pdf CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teticio/kindle2pdf/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// A4 in points.
const (
	pageWidthA4  = 595.28
	pageHeightA4 = 841.89
)

// rootCmd converts one book; subcommands cover the library index and version.
var rootCmd = &cobra.Command{
	Use:   "kindle2pdf <asin>",
	Short: "Convert Kindle books to PDF files",
	Long: `kindle2pdf renders a purchased Kindle book page by page through the Kindle
Cloud Reader backend and assembles the result into a PDF. Authentication
reuses the logged-in Chrome session; log in at https://read.amazon.com first.

With --remarkable the assembled PDF is uploaded to the reMarkable Cloud,
pairing the device on first use.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./kindle2pdf.yaml or ~/.config/kindle2pdf/config.yaml)")

	rootCmd.Flags().String("output", "", "output PDF path (default: \"<title>.pdf\")")
	rootCmd.Flags().Int("font-size", 12, "font size used for rendering")
	rootCmd.Flags().Int("dpi", 160, "raster resolution for page content")
	rootCmd.Flags().Duration("timeout", 60*time.Second, "HTTP request timeout")
	rootCmd.Flags().Bool("remarkable", false, "upload the PDF to reMarkable")
	rootCmd.Flags().String("otc", "", "reMarkable one-time pairing code (prompted when pairing is needed)")
	rootCmd.Flags().Bool("save-mock", false, "record backend responses to responses.jsonl")
	rootCmd.Flags().Bool("load-mock", false, "replay backend responses from responses.jsonl")

	viper.BindPFlag("render.font_size", rootCmd.Flags().Lookup("font-size"))
	viper.BindPFlag("render.dpi", rootCmd.Flags().Lookup("dpi"))
	viper.BindPFlag("render.timeout", rootCmd.Flags().Lookup("timeout"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("kindle2pdf")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kindle2pdf"))
		}
	}

	viper.SetEnvPrefix("KINDLE2PDF")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig materializes the invocation configuration from viper and
// defaults. Components receive it by value; nothing reads viper after this.
func loadConfig() types.Config {
	viper.SetDefault("render.font_size", 12)
	viper.SetDefault("render.dpi", 160)
	viper.SetDefault("render.timeout", 60*time.Second)
	viper.SetDefault("render.user_agent", "kindle2pdf/"+version)
	viper.SetDefault("render.page_width", pageWidthA4)
	viper.SetDefault("render.page_height", pageHeightA4)
	viper.SetDefault("render.margin_left", 0.5)
	viper.SetDefault("render.margin_right", 0.5)
	viper.SetDefault("render.margin_top", 0.5)
	viper.SetDefault("render.margin_bottom", 0.5)
	viper.SetDefault("render.batch_pages", 6)
	viper.SetDefault("capture.path", "responses.jsonl")

	home, _ := os.UserHomeDir()
	viper.SetDefault("remarkable.token_path", filepath.Join(home, ".pdf2remarkable"))
	viper.SetDefault("remarkable.device_desc", "browser-chrome")
	viper.SetDefault("remarkable.timeout", 5*time.Minute)
	viper.SetDefault("remarkable.user_agent", "kindle2pdf/"+version)
	viper.SetDefault("library.dir", filepath.Join(home, ".kindle2pdf"))

	return types.Config{
		Render: types.RenderConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("render.timeout"),
				UserAgent: viper.GetString("render.user_agent"),
			},
			FontSize:     viper.GetInt("render.font_size"),
			DPI:          viper.GetInt("render.dpi"),
			PageWidth:    viper.GetFloat64("render.page_width"),
			PageHeight:   viper.GetFloat64("render.page_height"),
			MarginLeft:   viper.GetFloat64("render.margin_left"),
			MarginRight:  viper.GetFloat64("render.margin_right"),
			MarginTop:    viper.GetFloat64("render.margin_top"),
			MarginBottom: viper.GetFloat64("render.margin_bottom"),
			BatchPages:   viper.GetInt("render.batch_pages"),
		},
		Capture: types.CaptureConfig{
			Mode: types.CaptureOff,
			Path: viper.GetString("capture.path"),
		},
		Remarkable: types.RemarkableConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("remarkable.timeout"),
				UserAgent: viper.GetString("remarkable.user_agent"),
			},
			TokenPath:  viper.GetString("remarkable.token_path"),
			DeviceDesc: viper.GetString("remarkable.device_desc"),
		},
		Library: types.LibraryConfig{
			Dir: viper.GetString("library.dir"),
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
