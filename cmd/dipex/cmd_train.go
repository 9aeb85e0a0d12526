package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dipex/internal/config"
	"dipex/internal/examples"
	"dipex/pkg/contract"
)

var (
	trainList       bool
	trainAdd        bool
	trainDiplomatic string
	trainFull       string
	trainExamples   string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Add diplomatic → full example pairs (stored locally)",
	RunE:  runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainExamples, "examples", "", "examples JSON path (default: examples.json)")
	f.BoolVarP(&trainList, "list", "l", false, "list current pairs")
	f.BoolVar(&trainAdd, "add", false, "add one pair via --diplomatic / --full")
	f.StringVarP(&trainDiplomatic, "diplomatic", "d", "", "diplomatic text (with --add)")
	f.StringVarP(&trainFull, "full", "f", "", "full form (with --add)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(config.Config{Examples: trainExamples})
	if err != nil {
		return err
	}
	store := examples.NewStore()
	existing, err := store.Load(cfg.Examples)
	if err != nil {
		return err
	}

	if trainList {
		fmt.Fprintf(os.Stderr, "Examples in %s (%d pairs):\n", cfg.Examples, len(existing))
		for i, p := range existing {
			fmt.Fprintf(os.Stderr, "  %d. %q → %q\n", i+1, p.Diplomatic, p.Full)
		}
		return nil
	}

	if trainAdd {
		updated, err := examples.AddPair(existing, trainDiplomatic, trainFull)
		if err != nil {
			return fmt.Errorf("--add requires both --diplomatic and --full: %w", err)
		}
		if err := store.Save(cfg.Examples, updated); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Added 1 pair → %s (%d total)\n", cfg.Examples, len(updated))
		return nil
	}

	// 交互循环：空 diplomatic 结束。
	fmt.Fprintln(os.Stderr, "Add diplomatic → full pairs (stored locally). Empty diplomatic to quit.")
	fmt.Fprintln(os.Stderr, "Examples file:", cfg.Examples)
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "Diplomatic (empty to quit): ")
		if !sc.Scan() {
			break
		}
		d := strings.TrimSpace(sc.Text())
		if d == "" {
			break
		}
		fmt.Fprint(os.Stderr, "Full: ")
		if !sc.Scan() {
			break
		}
		f := strings.TrimSpace(sc.Text())
		if f == "" {
			fmt.Fprintln(os.Stderr, "Skipped (empty full).")
			continue
		}
		updated, err := examples.AddPair(existing, d, f)
		if err != nil {
			if errors.Is(err, contract.ErrInvalidInput) {
				continue
			}
			return err
		}
		existing = updated
		if err := store.Save(cfg.Examples, existing); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  → saved (%d pairs)\n", len(existing))
	}
	return sc.Err()
}
