package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dipex/internal/catalog"
	bremote "dipex/plugins/backend/remote"
)

var modelsRefresh bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available remote models, fastest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.New("")
		if err != nil {
			return err
		}
		var fetch catalog.Fetcher
		if key, kerr := bremote.APIKey(nil); kerr == nil {
			fetch = func(ctx context.Context) ([]string, error) {
				return bremote.ListModels(ctx, key, 10*time.Second)
			}
		}
		models := cat.Models(cmd.Context(), fetch, modelsRefresh)
		for _, m := range models {
			marker := " "
			if m == catalog.DefaultModel {
				marker = "*"
			}
			fmt.Fprintf(os.Stdout, "%s %s\n", marker, m)
		}
		fmt.Fprintln(os.Stderr, "* = default; list cached for 24h (use --refresh to refetch)")
		return nil
	},
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsRefresh, "refresh", false, "bypass cache and refetch from the API")
}
