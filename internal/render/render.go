// Package render turns the ordered render set into the published artifacts:
// an Atom 1.0 feed, a static index page and the build timestamp.
//
// Render is pure. It reads no clock and touches no files; WriteArtifacts
// does the writing.
package render

import (
	"net/url"
	"strings"
	"time"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/model"
)

// BuildTimestampLayout is RFC 3339 with all nine fractional digits.
const BuildTimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// tagDate is the date part of the fallback tag: feed id.
const tagDate = "2024"

// SiteMeta describes where and how the feed is published.
type SiteMeta struct {
	Title       string
	Description string
	SiteURL     string // no trailing slash; empty for relative links
	FeedPath    string
	FeedSource  string
	MinLikes    int
}

// FeedURL is the absolute feed URL, or FeedPath when SiteURL is empty.
func (m SiteMeta) FeedURL() string {
	return joinURL(m.SiteURL, m.FeedPath)
}

// IndexURL is the absolute index page URL, or "index.html".
func (m SiteMeta) IndexURL() string {
	return joinURL(m.SiteURL, "index.html")
}

// FeedID is the feed-level <id>. It depends only on configuration so it is
// stable across runs.
func (m SiteMeta) FeedID() string {
	if m.SiteURL != "" {
		return m.FeedURL()
	}
	host := "localhost"
	if u, err := url.Parse(m.FeedSource); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return "tag:" + host + "," + tagDate + ":" + strings.TrimPrefix(m.FeedPath, "/")
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Output holds the rendered artifacts.
type Output struct {
	Feed           []byte
	Index          []byte
	BuildTimestamp string
}

// Render builds all artifacts for set, which must already be filtered,
// ordered and truncated.
func Render(set []model.Article, site SiteMeta, now time.Time) (Output, error) {
	feed, updated, err := buildFeed(set, site, now)
	if err != nil {
		return Output{}, apperr.New(apperr.RenderFailure, "render.feed", err)
	}

	index, err := buildIndex(site, updated)
	if err != nil {
		return Output{}, apperr.New(apperr.RenderFailure, "render.index", err)
	}

	return Output{
		Feed:           feed,
		Index:          index,
		BuildTimestamp: now.UTC().Format(BuildTimestampLayout),
	}, nil
}

// entryUpdated is the later of updated and published, or now.
func entryUpdated(a model.Article, now time.Time) time.Time {
	if t, ok := a.Latest(); ok {
		return t
	}
	return now
}
