package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pdiddy/registry-engine/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the newest registry snapshot CSV",
	Long: `Fetch walks the publication calendar backwards from today, up to the
configured lookback window, and downloads the first snapshot it finds
that is not already present in the files directory. Dates the publisher
never produced (404) are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := snapshotConfig()
		client := &http.Client{Timeout: httpTimeout(cfg)}

		res, err := fetch.Latest(cmd.Context(), client, cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s\n", res.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
