// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teticio/kindle2pdf/internal/library"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List books rendered on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := library.Open(cfg.Library)
		if err != nil {
			return err
		}
		defer store.Close()

		books, err := store.List()
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Println("No books rendered yet.")
			return nil
		}

		for _, b := range books {
			uploaded := ""
			if b.Uploaded {
				uploaded = "  [reMarkable]"
			}
			fmt.Printf("%s  %s  %d pages  %s%s\n",
				b.ASIN, b.RenderedAt.Format("2006-01-02"), b.Pages, b.Title, uploaded)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(libraryCmd)
}
