// Package state loads and saves the persisted item set.
//
// The document is JSON shaped as {"items": [...]}. Fields inside an item that
// this version does not know are carried through a load/save cycle untouched;
// unknown top-level fields are ignored.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/atomicio"
	"github.com/abelbrown/likesfeed/internal/logging"
	"github.com/abelbrown/likesfeed/internal/model"
)

// record is the stored form of one article.
type record struct {
	Key        string  `json:"key,omitempty"`
	ItemID     string  `json:"item_id"`
	Title      string  `json:"title"`
	Link       string  `json:"link"`
	Summary    *string `json:"summary"`
	Published  *string `json:"published"`
	Updated    *string `json:"updated"`
	AuthorName *string `json:"author_name"`
	LikesCount int     `json:"likes_count"`
	LastSeen   string  `json:"last_seen"`
}

var knownFields = map[string]bool{
	"key":         true,
	"item_id":     true,
	"title":       true,
	"link":        true,
	"summary":     true,
	"published":   true,
	"updated":     true,
	"author_name": true,
	"likes_count": true,
	"last_seen":   true,
}

type document struct {
	Items []json.RawMessage `json:"items"`
}

// Load reads the state at path. A missing file yields an empty state; a
// document that does not match the schema yields apperr.StateCorrupt.
func Load(path string) (model.State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Info("no state file, starting empty", "path", path)
		return model.State{}, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.StateCorrupt, "state.load", fmt.Errorf("read %s: %w", path, err))
	}
	return Decode(data)
}

// Decode parses a state document.
func Decode(data []byte) (model.State, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.New(apperr.StateCorrupt, "state.load", fmt.Errorf("parse document: %w", err))
	}

	st := make(model.State, len(doc.Items))
	for i, raw := range doc.Items {
		a, err := decodeItem(raw)
		if err != nil {
			return nil, apperr.New(apperr.StateCorrupt, "state.load", fmt.Errorf("item %d: %w", i, err))
		}
		if _, dup := st[a.ItemID]; dup {
			logging.Warn("duplicate item in state, keeping the later one", "item_id", a.ItemID)
		}
		st[a.ItemID] = a
	}
	return st, nil
}

func decodeItem(raw json.RawMessage) (model.Article, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Article{}, err
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.Article{}, err
	}

	id := r.ItemID
	if id == "" {
		id = r.Key
	}
	if id == "" {
		return model.Article{}, errors.New("missing item_id")
	}
	if r.LikesCount < 0 {
		return model.Article{}, fmt.Errorf("negative likes_count %d", r.LikesCount)
	}

	a := model.Article{
		ItemID:     id,
		Title:      r.Title,
		Link:       r.Link,
		Summary:    deref(r.Summary),
		AuthorName: deref(r.AuthorName),
		LikesCount: r.LikesCount,
	}

	var err error
	if a.LastSeen, err = parseTime("last_seen", &r.LastSeen, true); err != nil {
		return model.Article{}, err
	}
	if a.Published, err = parseTime("published", r.Published, false); err != nil {
		return model.Article{}, err
	}
	if a.Updated, err = parseTime("updated", r.Updated, false); err != nil {
		return model.Article{}, err
	}

	for k, v := range fields {
		if knownFields[k] {
			continue
		}
		if a.Extra == nil {
			a.Extra = make(map[string][]byte)
		}
		a.Extra[k] = append([]byte(nil), v...)
	}
	return a, nil
}

func parseTime(field string, v *string, required bool) (time.Time, error) {
	if v == nil || *v == "" {
		if required {
			return time.Time{}, fmt.Errorf("missing %s", field)
		}
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Encode serializes st with items sorted by item id.
func Encode(st model.State) ([]byte, error) {
	ids := make([]string, 0, len(st))
	for id := range st {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	doc := document{Items: make([]json.RawMessage, 0, len(ids))}
	for _, id := range ids {
		raw, err := encodeItem(st[id])
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", id, err)
		}
		doc.Items = append(doc.Items, raw)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeItem(a model.Article) (json.RawMessage, error) {
	r := record{
		ItemID:     a.ItemID,
		Title:      a.Title,
		Link:       a.Link,
		Summary:    optional(a.Summary),
		Published:  formatTime(a.Published),
		Updated:    formatTime(a.Updated),
		AuthorName: optional(a.AuthorName),
		LikesCount: a.LikesCount,
		LastSeen:   a.LastSeen.Format(time.RFC3339Nano),
	}
	if len(a.Extra) == 0 {
		return json.Marshal(r)
	}

	// Merge unknown fields back in. Known fields win on collision.
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range a.Extra {
		if !knownFields[k] {
			fields[k] = json.RawMessage(v)
		}
	}
	return json.Marshal(fields)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

// Save atomically replaces the state file at path.
func Save(path string, st model.State) error {
	data, err := Encode(st)
	if err != nil {
		return apperr.New(apperr.RenderFailure, "state.save", err)
	}
	if err := atomicio.WriteFile(path, data, 0644); err != nil {
		return apperr.New(apperr.RenderFailure, "state.save", err)
	}
	logging.Debug("state saved", "path", path, "items", len(st))
	return nil
}
