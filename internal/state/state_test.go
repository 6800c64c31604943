package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/model"
)

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st == nil || len(st) != 0 {
		t.Errorf("expected empty non-nil state, got %v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")
	seen := time.Date(2024, 6, 1, 12, 0, 0, 123, time.UTC)
	pub := time.Date(2024, 5, 30, 9, 0, 0, 0, time.FixedZone("JST", 9*3600))

	want := model.State{
		"a1": {
			ItemID:     "a1",
			Title:      "First <b>post</b>",
			Link:       "https://qiita.com/alice/items/a1",
			Summary:    "<p>hello</p>",
			AuthorName: "alice",
			LikesCount: 42,
			Published:  pub,
			Updated:    pub.Add(time.Hour),
			LastSeen:   seen,
		},
		"b2": {ItemID: "b2", Link: "https://qiita.com/bob/items/b2", LastSeen: seen},
	}

	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	a := got["a1"]
	if a.Title != want["a1"].Title || a.Summary != "<p>hello</p>" || a.AuthorName != "alice" || a.LikesCount != 42 {
		t.Errorf("fields changed: %+v", a)
	}
	if !a.Published.Equal(pub) || !a.Updated.Equal(pub.Add(time.Hour)) || !a.LastSeen.Equal(seen) {
		t.Errorf("timestamps changed: %+v", a)
	}
	if b := got["b2"]; !b.Published.IsZero() || !b.Updated.IsZero() || b.Summary != "" {
		t.Errorf("absent fields should stay absent: %+v", b)
	}
}

func TestSaveIsSortedByItemID(t *testing.T) {
	seen := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	data, err := Encode(model.State{
		"zz": {ItemID: "zz", Link: "l", LastSeen: seen},
		"aa": {ItemID: "aa", Link: "l", LastSeen: seen},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if strings.Index(string(data), `"aa"`) > strings.Index(string(data), `"zz"`) {
		t.Errorf("items not sorted by id:\n%s", data)
	}
}

func TestUnknownFieldsArePreserved(t *testing.T) {
	doc := `{
  "version": 7,
  "items": [
    {"item_id": "a1", "title": "t", "link": "l", "likes_count": 3,
     "last_seen": "2024-06-01T00:00:00Z", "tags": ["go", "rust"], "score": 1.5}
  ]
}`
	st, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	out, err := Encode(st)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var parsed struct {
		Items []struct {
			ItemID string   `json:"item_id"`
			Tags   []string `json:"tags"`
			Score  float64  `json:"score"`
		} `json:"items"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	item := parsed.Items[0]
	if item.ItemID != "a1" {
		t.Errorf("unexpected item_id %q", item.ItemID)
	}
	if len(item.Tags) != 2 || item.Tags[0] != "go" || item.Tags[1] != "rust" {
		t.Errorf("tags not preserved: %v", item.Tags)
	}
	if item.Score != 1.5 {
		t.Errorf("score not preserved: %v", item.Score)
	}
	if strings.Contains(string(out), "version") {
		t.Errorf("unknown top-level fields should be dropped:\n%s", out)
	}
}

func TestLoadLegacyKeyAndNulls(t *testing.T) {
	doc := `{"items": [{"key": "legacy1", "item_id": null, "title": "t", "link": "l",
		"summary": null, "published": null, "updated": "2024-01-02T03:04:05+09:00",
		"author_name": null, "likes_count": 11, "last_seen": "2024-06-01T00:00:00+00:00"}]}`

	st, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	a, ok := st["legacy1"]
	if !ok {
		t.Fatalf("expected item keyed by legacy key, got %v", st)
	}
	if a.LikesCount != 11 || a.Updated.IsZero() || !a.Published.IsZero() {
		t.Errorf("unexpected article: %+v", a)
	}
}

func TestLoadCorrupt(t *testing.T) {
	tests := map[string]string{
		"not json":          `{"items": [`,
		"items not array":   `{"items": {"a": 1}}`,
		"missing id":        `{"items": [{"link": "l", "last_seen": "2024-06-01T00:00:00Z"}]}`,
		"bad last_seen":     `{"items": [{"item_id": "a", "last_seen": "yesterday"}]}`,
		"missing last_seen": `{"items": [{"item_id": "a"}]}`,
		"bad published":     `{"items": [{"item_id": "a", "last_seen": "2024-06-01T00:00:00Z", "published": "soon"}]}`,
		"negative likes":    `{"items": [{"item_id": "a", "last_seen": "2024-06-01T00:00:00Z", "likes_count": -1}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !apperr.Is(err, apperr.StateCorrupt) {
				t.Errorf("expected StateCorrupt, got %v", err)
			}
		})
	}
}

func TestLoadDuplicateKeepsLater(t *testing.T) {
	doc := `{"items": [
		{"item_id": "a", "likes_count": 1, "last_seen": "2024-06-01T00:00:00Z"},
		{"item_id": "a", "likes_count": 2, "last_seen": "2024-06-01T00:00:00Z"}]}`
	st, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(st) != 1 || st["a"].LikesCount != 2 {
		t.Errorf("expected one item with likes 2, got %+v", st)
	}
}

func TestSaveFailureIsWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	err := Save(filepath.Join(blocker, "state.json"), model.State{})
	if !apperr.Is(err, apperr.RenderFailure) {
		t.Errorf("expected RenderFailure, got %v", err)
	}
}
