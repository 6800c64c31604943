// Package pipeline sequences one likesfeed run: load state, fetch the
// source feed, count likes, merge, render and write.
//
// A run is fail-closed. Any collection failure aborts before the first
// write, so the previously published artifacts and state stay in place.
package pipeline

import (
	"context"
	"time"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/history"
	"github.com/abelbrown/likesfeed/internal/logging"
	"github.com/abelbrown/likesfeed/internal/merge"
	"github.com/abelbrown/likesfeed/internal/model"
	"github.com/abelbrown/likesfeed/internal/render"
	"github.com/abelbrown/likesfeed/internal/state"
)

// FeedSource yields the current batch of candidates.
type FeedSource interface {
	Fetch(ctx context.Context) ([]model.Candidate, error)
}

// LikesCounter resolves like counts for a set of item ids.
type LikesCounter interface {
	CountAll(ctx context.Context, ids []string, concurrency int) (map[string]int, error)
}

// Recorder stores a run summary. *history.Store implements it.
type Recorder interface {
	RecordRun(ctx context.Context, run history.Run, obs []history.Observation) (string, error)
}

// Options are the per-run inputs.
type Options struct {
	StatePath   string
	Paths       render.Paths
	Policy      merge.Policy
	Site        render.SiteMeta
	Concurrency int
	DryRun      bool
}

// Driver runs the pipeline against its collaborators.
type Driver struct {
	Source FeedSource
	Likes  LikesCounter

	// History is optional.
	History Recorder

	// Now defaults to time.Now.
	Now func() time.Time
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Stats   merge.Stats
	Entries []model.Article
	Output  render.Output
	Wrote   bool
}

// Run executes one pass. The returned error carries an apperr.Kind.
func (d *Driver) Run(ctx context.Context, opts Options) (Result, error) {
	log := logging.WithPrefix("pipeline")

	if err := opts.Policy.Validate(); err != nil {
		return Result{}, apperr.New(apperr.Config, "pipeline", err)
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	started := now()

	persisted, err := state.Load(opts.StatePath)
	if err != nil {
		return Result{}, err
	}
	log.Debug("state loaded", "path", opts.StatePath, "items", len(persisted))

	candidates, err := d.Source.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	var ids []string
	for _, c := range candidates {
		if !c.Valid() {
			log.Warn("skipping likes lookup for malformed entry", "title", c.Title, "link", c.Link)
			continue
		}
		ids = append(ids, c.ItemID)
	}

	counts, err := d.Likes.CountAll(ctx, ids, opts.Concurrency)
	if err != nil {
		return Result{}, err
	}
	for i := range candidates {
		candidates[i].LikesCount = counts[candidates[i].ItemID]
	}

	merged, set, stats := merge.Merge(persisted, candidates, started, opts.Policy)

	out, err := render.Render(set, opts.Site, started)
	if err != nil {
		return Result{}, err
	}

	res := Result{Stats: stats, Entries: set, Output: out}
	if opts.DryRun {
		log.Info("dry run, nothing written", "fetched", stats.Fetched, "stored", stats.Stored, "entries", len(set))
		return res, nil
	}

	// Artifacts first: if they fail the old state remains and a re-run
	// reproduces the same merge.
	if err := render.WriteArtifacts(opts.Paths, out); err != nil {
		return Result{}, err
	}
	if err := state.Save(opts.StatePath, merged); err != nil {
		return Result{}, err
	}
	res.Wrote = true

	if d.History != nil {
		res.RunID = d.record(ctx, started, candidates, stats)
	}

	log.Info("run complete",
		"fetched", stats.Fetched,
		"dropped", stats.Dropped,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"expired", stats.ExpiredByAge,
		"evicted", stats.EvictedByCap,
		"stored", stats.Stored,
		"entries", stats.Rendered,
	)
	return res, nil
}

// record writes the run to the history ledger. Failures are logged only:
// artifacts and state are already on disk.
func (d *Driver) record(ctx context.Context, started time.Time, candidates []model.Candidate, stats merge.Stats) string {
	obs := make([]history.Observation, 0, len(candidates))
	for _, c := range candidates {
		if !c.Valid() {
			continue
		}
		obs = append(obs, history.Observation{ItemID: c.ItemID, ObservedAt: started, LikesCount: c.LikesCount})
	}

	id, err := d.History.RecordRun(ctx, history.Run{
		StartedAt: started,
		Fetched:   stats.Fetched,
		Dropped:   stats.Dropped,
		Stored:    stats.Stored,
		Rendered:  stats.Rendered,
	}, obs)
	if err != nil {
		logging.Warn("failed to record run history", "err", err)
		return ""
	}
	return id
}
