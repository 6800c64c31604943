package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/config"
	"github.com/abelbrown/likesfeed/internal/fetch"
	"github.com/abelbrown/likesfeed/internal/history"
	"github.com/abelbrown/likesfeed/internal/likes"
	"github.com/abelbrown/likesfeed/internal/logging"
	"github.com/abelbrown/likesfeed/internal/pipeline"
	"github.com/abelbrown/likesfeed/internal/render"
	"github.com/abelbrown/likesfeed/internal/retry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig    string
	flagState     string
	flagOut       string
	flagIndex     string
	flagLastBuild string
	flagDryRun    bool
	flagLogLevel  string
	flagHistory   string
	flagEnvFile   string
)

var rootCmd = &cobra.Command{
	Use:   "likesfeed",
	Short: "Publish an Atom feed of popular articles above a like threshold",
	Long: `likesfeed fetches the popular-articles feed, counts each article's likes,
merges the result into the persisted item store, applies retention, and
writes an Atom feed, an index page and a build timestamp.

A failed fetch or likes lookup leaves every existing file untouched.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logging.Init(os.Stderr, flagLogLevel); err != nil {
			return apperr.New(apperr.Config, "logging", err)
		}
		return config.LoadEnvFile(flagEnvFile)
	},
	RunE: runPipeline,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file (default $XDG_CONFIG_HOME/likesfeed/config.yaml)")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flagHistory, "history", "", "run history database (overrides history_db)")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before the config")

	f := rootCmd.Flags()
	f.StringVar(&flagState, "state", "data/state.json", "persisted item store")
	f.StringVar(&flagOut, "out", "public/feed.xml", "Atom feed output path")
	f.StringVar(&flagIndex, "index", "public/index.html", "index page output path")
	f.StringVar(&flagLastBuild, "last-build", "public/last_build.txt", "build timestamp output path")
	f.BoolVar(&flagDryRun, "dry-run", false, "merge and render without writing anything")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperr.New(apperr.Config, "flags", err)
	})

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(historyCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "likesfeed %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	interval, err := cfg.MinInterval()
	if err != nil {
		return apperr.New(apperr.Config, "config", err)
	}

	policy := retry.Default()
	d := &pipeline.Driver{
		Source: fetch.NewSource(cfg.FeedSource, nil, policy),
		Likes: likes.New(likes.Options{
			BaseURL:     cfg.LikesAPIBase,
			Token:       cfg.QiitaAPIToken,
			PerPage:     cfg.LikesPerPage,
			MaxPages:    cfg.LikesMaxPages,
			MinInterval: interval,
			Policy:      policy,
		}),
	}

	if path := historyPath(cfg); path != "" && !flagDryRun {
		st, err := history.Open(path)
		if err != nil {
			logging.Warn("run history disabled", "path", path, "err", err)
		} else {
			defer st.Close()
			d.History = st
		}
	}

	logging.Info("starting run",
		"source", cfg.FeedSource,
		"min_likes", cfg.MinLikes,
		"token", cfg.QiitaAPIToken != "",
		"dry_run", flagDryRun,
	)

	res, err := d.Run(cmd.Context(), pipeline.Options{
		StatePath: flagState,
		Paths: render.Paths{
			Feed:      flagOut,
			Index:     flagIndex,
			LastBuild: flagLastBuild,
		},
		Policy:      cfg.Policy(),
		Site:        cfg.Site(),
		Concurrency: cfg.LikesConcurrency,
		DryRun:      flagDryRun,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderReport(res, flagDryRun))
	return nil
}

func historyPath(cfg *config.Config) string {
	if flagHistory != "" {
		return flagHistory
	}
	return cfg.HistoryDB
}
