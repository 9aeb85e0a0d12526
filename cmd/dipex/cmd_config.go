package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dipex/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a runnable config.json and .env template (never overwrites)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		cfgPath := filepath.Join(dir, "config.json")
		if _, err := os.Stat(cfgPath); err == nil {
			fmt.Fprintf(os.Stderr, "Skipped %s (already exists)\n", cfgPath)
		} else {
			data, err := json.MarshalIndent(config.DefaultTemplateConfig(), "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfgPath, append(data, '\n'), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", cfgPath)
		}
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			fmt.Fprintf(os.Stderr, "Skipped %s (already exists)\n", envPath)
			return nil
		}
		if err := os.WriteFile(envPath, []byte(envTemplate), 0o600); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", envPath)
		return nil
	},
}

const envTemplate = `# dipex environment overrides (loaded from the working directory).
# Remote backend API key (https://aistudio.google.com/apikey):
#GEMINI_API_KEY=
# Uncomment to override config values:
#DIPEX_BACKEND=remote
#DIPEX_MODALITY=full
#DIPEX_EXAMPLES=examples.json
#DIPEX_CONCURRENCY=4
#DIPEX_MAX_RETRIES=2
#DIPEX_LOG_LEVEL=info
# Local (Ollama) request timeout in seconds:
#OLLAMA_TIMEOUT=120
`

func init() {
	configCmd.AddCommand(configInitCmd)
}
