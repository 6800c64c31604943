package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/config"
	"github.com/abelbrown/likesfeed/internal/history"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history [item-id]",
	Short: "Show recorded runs, or the like-count history of one item",
	Long: `Without arguments, list the most recent runs from the history database.
With an item id, list every like count recorded for that item.

The database comes from --history or the history_db config key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		path := historyPath(cfg)
		if path == "" {
			return apperr.New(apperr.Config, "history", errors.New("no history database configured (set --history or history_db)"))
		}

		if _, err := os.Stat(path); err != nil {
			return apperr.New(apperr.Config, "history", fmt.Errorf("history database %s: %w", path, err))
		}

		st, err := history.Open(path)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer st.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			obs, err := st.LikesHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderLikesHistory(args[0], obs))
			return nil
		}

		runs, err := st.RecentRuns(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderRuns(runs))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of runs to show")
}
