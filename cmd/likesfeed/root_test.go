package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/history"
	"github.com/abelbrown/likesfeed/internal/merge"
	"github.com/abelbrown/likesfeed/internal/model"
	"github.com/abelbrown/likesfeed/internal/pipeline"
)

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		flagDryRun = false
		flagHistory = ""
		flagConfig = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "likesfeed dev") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestUnknownFlagIsConfigError(t *testing.T) {
	_, err := execute(t, "--no-such-flag")
	if got := apperr.ExitCode(err); got != apperr.ExitConfig {
		t.Errorf("exit code = %d, want %d (err %v)", got, apperr.ExitConfig, err)
	}
}

func TestMissingConfigIsConfigError(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--dry-run")
	if got := apperr.ExitCode(err); got != apperr.ExitConfig {
		t.Errorf("exit code = %d, want %d (err %v)", got, apperr.ExitConfig, err)
	}
}

func newUpstream(t *testing.T, likesStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom"><id>x</id><title>t</title><updated>2024-06-01T00:00:00Z</updated>
<entry><id>1</id><title>Hello</title><link rel="alternate" href="https://qiita.com/alice/items/abc"/>
<published>2024-05-30T00:00:00Z</published><updated>2024-05-31T00:00:00Z</updated></entry>
</feed>`)
	})
	mux.HandleFunc("/api/v2/items/abc/likes", func(w http.ResponseWriter, r *http.Request) {
		if likesStatus != http.StatusOK {
			w.WriteHeader(likesStatus)
			return
		}
		fmt.Fprint(w, `[{},{},{}]`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeTestConfig(t *testing.T, dir, base string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("min_likes: 1\nfeed_source: %s/feed\nlikes_api_base: %s/api/v2\nsite_url: https://example.com\n", base, base)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootRunsPipeline(t *testing.T) {
	for _, k := range []string{"MIN_LIKES", "SITE_URL", "QIITA_API_TOKEN", "GITHUB_REPOSITORY"} {
		t.Setenv(k, "")
	}
	server := newUpstream(t, http.StatusOK)
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, server.URL)
	hist := filepath.Join(dir, "history.db")

	out, err := execute(t,
		"--config", cfg,
		"--state", filepath.Join(dir, "state.json"),
		"--out", filepath.Join(dir, "public", "feed.xml"),
		"--index", filepath.Join(dir, "public", "index.html"),
		"--last-build", filepath.Join(dir, "public", "last_build.txt"),
		"--history", hist,
		"--log-level", "error",
	)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "run: merged=1 stored=1 entries=1") {
		t.Errorf("unexpected report:\n%s", out)
	}
	for _, name := range []string{"state.json", "public/feed.xml", "public/index.html", "public/last_build.txt", "public/.nojekyll"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	out, err = execute(t, "history", "--config", cfg, "--history", hist, "abc")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "Likes for abc") || !strings.Contains(out, "3") {
		t.Errorf("unexpected history output:\n%s", out)
	}
}

func TestRootUnauthorizedLeavesFilesAlone(t *testing.T) {
	for _, k := range []string{"MIN_LIKES", "SITE_URL", "QIITA_API_TOKEN", "GITHUB_REPOSITORY"} {
		t.Setenv(k, "")
	}
	server := newUpstream(t, http.StatusUnauthorized)
	dir := t.TempDir()
	cfg := writeTestConfig(t, dir, server.URL)
	feed := filepath.Join(dir, "feed.xml")
	if err := os.WriteFile(feed, []byte("previous"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t,
		"--config", cfg,
		"--state", filepath.Join(dir, "state.json"),
		"--out", feed,
		"--index", filepath.Join(dir, "index.html"),
		"--last-build", filepath.Join(dir, "last_build.txt"),
		"--log-level", "error",
	)
	if got := apperr.ExitCode(err); got != apperr.ExitUpstream {
		t.Fatalf("exit code = %d, want %d (err %v)", got, apperr.ExitUpstream, err)
	}
	if !strings.Contains(err.Error(), "QIITA_API_TOKEN") {
		t.Errorf("error should hint at the token: %v", err)
	}
	if got, _ := os.ReadFile(feed); string(got) != "previous" {
		t.Errorf("feed overwritten: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "state.json")); err == nil {
		t.Error("state written on a failed run")
	}
}

func TestHistoryRequiresDatabase(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfg, nil, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "history", "--config", cfg)
	if !apperr.Is(err, apperr.Config) {
		t.Errorf("expected Config error, got %v", err)
	}
}

func TestHistoryMissingDatabaseIsNotCreated(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfg, nil, 0644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "typo", "history.db")

	_, err := execute(t, "history", "--config", cfg, "--history", missing)
	if got := apperr.ExitCode(err); got != apperr.ExitConfig {
		t.Errorf("exit code = %d, want %d (err %v)", got, apperr.ExitConfig, err)
	}
	if _, err := os.Stat(filepath.Dir(missing)); !os.IsNotExist(err) {
		t.Errorf("history created %s: %v", filepath.Dir(missing), err)
	}
}

func TestRenderReport(t *testing.T) {
	entries := make([]model.Article, 12)
	for i := range entries {
		entries[i] = model.Article{ItemID: fmt.Sprint(i), Title: fmt.Sprintf("Post %d", i), LikesCount: 100 - i}
	}
	res := pipeline.Result{
		Stats:   merge.Stats{Fetched: 12, Inserted: 10, Updated: 2, Stored: 40, Rendered: 12},
		Entries: entries,
	}

	out := renderReport(res, true)
	if !strings.HasPrefix(out, "dry-run: merged=12 stored=40 entries=12\n") {
		t.Errorf("unexpected first line:\n%s", out)
	}
	if !strings.Contains(out, "Post 9") || strings.Contains(out, "Post 10") {
		t.Errorf("expected the first 10 entries only:\n%s", out)
	}
	if !strings.Contains(out, "2 more") || !strings.Contains(out, "nothing was written") {
		t.Errorf("missing footer:\n%s", out)
	}
}

func TestRenderRunsAndLikes(t *testing.T) {
	if out := renderRuns(nil); !strings.Contains(out, "no runs recorded") {
		t.Errorf("unexpected empty output %q", out)
	}
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := renderRuns([]history.Run{{StartedAt: at, Fetched: 5, Stored: 9, Rendered: 3}})
	if !strings.Contains(out, "2024-06-01T00:00:00Z") || !strings.Contains(out, "fetched=5") {
		t.Errorf("unexpected runs output:\n%s", out)
	}

	out = renderLikesHistory("abc", []history.Observation{
		{ObservedAt: at, LikesCount: 10},
		{ObservedAt: at.Add(time.Hour), LikesCount: 15},
	})
	if !strings.Contains(out, "(+5)") {
		t.Errorf("expected delta in likes history:\n%s", out)
	}
}
