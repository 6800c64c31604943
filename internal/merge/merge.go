// Package merge reconciles a freshly fetched batch of candidates with the
// persisted item set, applies the retention policy, and selects the ordered
// render set.
//
// Merge is a pure function of its inputs: the current time arrives as a
// parameter and the input state is never mutated.
package merge

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/logging"
	"github.com/abelbrown/likesfeed/internal/model"
)

// Policy holds the threshold and retention limits. All fields are required;
// the engine does not default them.
type Policy struct {
	MinLikes       int
	MaxFeedEntries int
	MaxStoredDays  int
	MaxStoredItems int
}

// Validate rejects limits the engine cannot honor.
func (p Policy) Validate() error {
	switch {
	case p.MinLikes < 0:
		return fmt.Errorf("min_likes must be >= 0, got %d", p.MinLikes)
	case p.MaxFeedEntries < 1:
		return fmt.Errorf("max_feed_entries must be >= 1, got %d", p.MaxFeedEntries)
	case p.MaxStoredDays < 1:
		return fmt.Errorf("max_stored_days must be >= 1, got %d", p.MaxStoredDays)
	case p.MaxStoredItems < 1:
		return fmt.Errorf("max_stored_items must be >= 1, got %d", p.MaxStoredItems)
	}
	return nil
}

// Stats summarizes one merge.
type Stats struct {
	Fetched      int
	Dropped      int
	Inserted     int
	Updated      int
	ExpiredByAge int
	EvictedByCap int
	Stored       int
	Rendered     int

	// Malformed holds one apperr.MalformedCandidate error per dropped candidate.
	Malformed []error
}

// Merge upserts fetched into a copy of persisted, applies retention relative
// to now, and returns the new state with the render set.
func Merge(persisted model.State, fetched []model.Candidate, now time.Time, p Policy) (model.State, []model.Article, Stats) {
	state := persisted.Clone()
	stats := Stats{Fetched: len(fetched)}

	for _, c := range fetched {
		if !c.Valid() {
			err := malformed(c)
			stats.Dropped++
			stats.Malformed = append(stats.Malformed, err)
			logging.Warn("dropping malformed candidate", "title", c.Title, "err", err)
			continue
		}
		if upsert(state, c, now) {
			stats.Inserted++
		} else {
			stats.Updated++
		}
	}

	stats.ExpiredByAge = expire(state, now, p.MaxStoredDays)
	stats.EvictedByCap = evict(state, p.MaxStoredItems)
	stats.Stored = len(state)

	render := Select(state, p)
	stats.Rendered = len(render)

	return state, render, stats
}

func malformed(c model.Candidate) error {
	var reason error
	switch {
	case c.ItemID == "":
		reason = errors.New("missing item_id")
	default:
		reason = errors.New("missing link")
	}
	item := c.ItemID
	if item == "" {
		item = c.Title
	}
	return apperr.ForItem(apperr.MalformedCandidate, "merge", item, reason)
}

// upsert applies one candidate and reports whether it was newly inserted.
func upsert(state model.State, c model.Candidate, now time.Time) bool {
	existing, ok := state[c.ItemID]
	if !ok {
		state[c.ItemID] = model.Article{
			ItemID:     c.ItemID,
			Title:      c.Title,
			Link:       c.Link,
			Summary:    c.Summary,
			AuthorName: c.AuthorName,
			LikesCount: c.LikesCount,
			Published:  c.Published,
			Updated:    notBefore(c.Updated, c.Published),
			LastSeen:   now,
		}
		return true
	}

	existing.LikesCount = c.LikesCount
	existing.LastSeen = now
	if !c.Updated.IsZero() {
		existing.Updated = c.Updated
	}
	// published never regresses
	if !c.Published.IsZero() && (existing.Published.IsZero() || c.Published.After(existing.Published)) {
		existing.Published = c.Published
	}
	existing.Updated = notBefore(existing.Updated, existing.Published)
	if c.Title != "" {
		existing.Title = c.Title
	}
	existing.Link = c.Link
	if c.Summary != "" {
		existing.Summary = c.Summary
	}
	if c.AuthorName != "" {
		existing.AuthorName = c.AuthorName
	}
	state[c.ItemID] = existing
	return false
}

// notBefore returns updated raised to published when both are set and
// updated is earlier.
func notBefore(updated, published time.Time) time.Time {
	if !updated.IsZero() && !published.IsZero() && updated.Before(published) {
		return published
	}
	return updated
}

// expire removes articles not seen within maxDays of now.
func expire(state model.State, now time.Time, maxDays int) int {
	cutoff := now.Add(-time.Duration(maxDays) * 24 * time.Hour)
	removed := 0
	for id, a := range state {
		if a.LastSeen.Before(cutoff) {
			delete(state, id)
			removed++
		}
	}
	return removed
}

// evict removes the least recently seen articles until at most maxItems remain.
func evict(state model.State, maxItems int) int {
	excess := len(state) - maxItems
	if excess <= 0 {
		return 0
	}

	list := make([]model.Article, 0, len(state))
	for _, a := range state {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return evictBefore(list[i], list[j]) })

	for _, a := range list[:excess] {
		delete(state, a.ItemID)
	}
	return excess
}

// evictBefore orders by last_seen asc, published asc (missing first), id asc.
func evictBefore(a, b model.Article) bool {
	if !a.LastSeen.Equal(b.LastSeen) {
		return a.LastSeen.Before(b.LastSeen)
	}
	if c := comparePublished(a, b); c != 0 {
		return c < 0
	}
	return a.ItemID < b.ItemID
}

// Select returns the render set of state under p: articles meeting the
// threshold, ordered by RenderBefore and truncated to MaxFeedEntries.
func Select(state model.State, p Policy) []model.Article {
	out := make([]model.Article, 0, len(state))
	for _, a := range state {
		if a.LikesCount >= p.MinLikes {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return RenderBefore(out[i], out[j]) })
	if len(out) > p.MaxFeedEntries {
		out = out[:p.MaxFeedEntries]
	}
	return out
}

// RenderBefore orders by likes desc, published desc (missing last), id asc.
func RenderBefore(a, b model.Article) bool {
	if a.LikesCount != b.LikesCount {
		return a.LikesCount > b.LikesCount
	}
	if c := comparePublished(a, b); c != 0 {
		return c > 0
	}
	return a.ItemID < b.ItemID
}

// comparePublished treats a missing published time as older than any
// present one.
func comparePublished(a, b model.Article) int {
	switch {
	case a.Published.Equal(b.Published):
		return 0
	case a.Published.IsZero():
		return -1
	case b.Published.IsZero():
		return 1
	case a.Published.Before(b.Published):
		return -1
	default:
		return 1
	}
}
