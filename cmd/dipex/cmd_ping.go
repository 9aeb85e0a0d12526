package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dipex/internal/config"
	"dipex/pkg/contract"
	blocal "dipex/plugins/backend/local"
	bremote "dipex/plugins/backend/remote"
)

var pingTimeout int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Verify backend connectivity and print a helpful diagnosis",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(config.Config{Backend: expandBackend})
		if err != nil {
			return err
		}
		backend, err := buildBackend(cfg, nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(pingTimeout)*time.Second)
		defer cancel()

		var ok bool
		var msg string
		switch b := backend.(type) {
		case *bremote.Backend:
			ok, msg = b.Ping(ctx)
		case *blocal.Backend:
			ok, msg = b.Ping(ctx)
		default:
			ok, msg = true, fmt.Sprintf("Backend %q is in-process; nothing to ping.", cfg.Backend)
		}
		fmt.Fprintln(os.Stderr, msg)
		if !ok {
			return fmt.Errorf("%w: backend %q unreachable", contract.ErrBackendFailure, cfg.Backend)
		}
		fmt.Fprintln(os.Stderr, "OK")
		return nil
	},
}

func init() {
	pingCmd.Flags().StringVar(&expandBackend, "backend", "", "backend to probe: local/remote")
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 15, "probe timeout in seconds")
}
