// Package model holds the article types shared by the pipeline stages.
package model

import (
	"strings"
	"time"
)

// Candidate is an article returned by the feed source for the current run,
// not yet merged into persisted state. LikesCount is filled in by the likes
// client before the merge.
type Candidate struct {
	ItemID     string
	Title      string
	Link       string
	Summary    string
	AuthorName string
	Published  time.Time // zero when the source omitted it
	Updated    time.Time // zero when the source omitted it
	LikesCount int
}

// Valid reports whether the candidate carries the fields a merge needs.
func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.ItemID) != "" && strings.TrimSpace(c.Link) != ""
}

// Article is one tracked item in persisted state.
type Article struct {
	ItemID     string
	Title      string
	Link       string
	Summary    string
	AuthorName string
	LikesCount int
	Published  time.Time
	Updated    time.Time
	LastSeen   time.Time

	// Extra holds stored fields this version does not know about, keyed by
	// their JSON name, so they survive a load/save cycle.
	Extra map[string][]byte
}

// Latest returns the later of Updated and Published, and false when both
// are absent.
func (a Article) Latest() (time.Time, bool) {
	switch {
	case a.Updated.IsZero() && a.Published.IsZero():
		return time.Time{}, false
	case a.Updated.After(a.Published):
		return a.Updated, true
	default:
		return a.Published, true
	}
}

// Clone returns a deep copy of a.
func (a Article) Clone() Article {
	if a.Extra != nil {
		extra := make(map[string][]byte, len(a.Extra))
		for k, v := range a.Extra {
			extra[k] = append([]byte(nil), v...)
		}
		a.Extra = extra
	}
	return a
}

// State is the persisted item set keyed by item id. It has no order.
type State map[string]Article

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := make(State, len(s))
	for id, a := range s {
		out[id] = a.Clone()
	}
	return out
}
