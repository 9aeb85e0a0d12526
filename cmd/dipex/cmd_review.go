package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"dipex/internal/config"
	"dipex/internal/examples"
	"dipex/internal/learn"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review staged pairs before they enter the learned layer",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending staged pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := learn.OpenQueue("")
		if err != nil {
			return err
		}
		pending := q.Pending()
		if len(pending) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}
		fmt.Fprintf(os.Stderr, "%d pending pair(s):\n", len(pending))
		for _, i := range pending {
			s := q.Items[i]
			origin := s.Origin
			if origin == "" {
				origin = "unknown"
			}
			fmt.Fprintf(os.Stderr, "  %d. %q → %q  (%s)\n", i, s.Diplomatic, s.Full, origin)
		}
		return nil
	},
}

var reviewAcceptCmd = &cobra.Command{
	Use:   "accept <index>...",
	Short: "Accept staged pairs into the learned examples layer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := mutateQueue(args, func(q *learn.Queue, i int) error { return q.Accept(i) }); err != nil {
			return err
		}
		cfg, err := resolveConfig(config.Config{})
		if err != nil {
			return err
		}
		added, learnedPath, err := flushAccepted(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Accepted %d pair(s) → %s\n", added, learnedPath)
		return nil
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <index>...",
	Short: "Reject staged pairs (rejected shapes are not re-staged for a while)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateQueue(args, func(q *learn.Queue, i int) error { return q.Reject(i) })
	},
}

var reviewPromoteCmd = &cobra.Command{
	Use:   "promote <diplomatic>...",
	Short: "Move learned pairs into the curated examples file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(config.Config{})
		if err != nil {
			return err
		}
		store := examples.NewStore()
		curated, err := store.Load(cfg.Examples)
		if err != nil {
			return err
		}
		learnedPath := examples.LearnedPath(cfg.Examples)
		learned, err := store.Load(learnedPath)
		if err != nil {
			return err
		}
		for _, d := range args {
			curated, learned, err = examples.Promote(curated, learned, d)
			if err != nil {
				return err
			}
		}
		if err := store.Save(cfg.Examples, curated); err != nil {
			return err
		}
		if err := store.Save(learnedPath, learned); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Promoted %d pair(s) → %s (%d curated total)\n", len(args), cfg.Examples, len(curated))
		return nil
	},
}

// flushAccepted 将队列中已接受的对写入 learned 层并压缩队列。
func flushAccepted(cfg config.Config) (int, string, error) {
	q, err := learn.OpenQueue("")
	if err != nil {
		return 0, "", err
	}
	accepted := q.TakeAccepted()
	if len(accepted) == 0 {
		return 0, examples.LearnedPath(cfg.Examples), nil
	}
	store := examples.NewStore()
	curated, err := store.Load(cfg.Examples)
	if err != nil {
		return 0, "", err
	}
	learnedPath := examples.LearnedPath(cfg.Examples)
	existing, err := store.Load(learnedPath)
	if err != nil {
		return 0, "", err
	}
	merged, added := examples.AddLearnedPairs(existing, accepted, examples.ProtectKeys(curated), false, examples.DefaultMaxLearned)
	if err := store.Save(learnedPath, merged); err != nil {
		return 0, "", err
	}
	q.Compact()
	if err := q.Save(); err != nil {
		return 0, "", err
	}
	return added, learnedPath, nil
}

func mutateQueue(args []string, op func(*learn.Queue, int) error) error {
	q, err := learn.OpenQueue("")
	if err != nil {
		return err
	}
	for _, a := range args {
		i, err := strconv.Atoi(a)
		if err != nil {
			return fmt.Errorf("not an index: %q", a)
		}
		if err := op(q, i); err != nil {
			return err
		}
	}
	return q.Save()
}

func init() {
	reviewCmd.AddCommand(reviewListCmd, reviewAcceptCmd, reviewRejectCmd, reviewPromoteCmd)
}
