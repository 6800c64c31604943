package render

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="ja">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <link rel="alternate" type="application/atom+xml" title="{{.Title}}" href="{{.FeedURL}}" />
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; line-height: 1.6; }
    .meta { color: #555; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{- if .Description}}
  <p class="description">{{.Description}}</p>
  {{- end}}
  <p><a class="feed" href="{{.FeedURL}}">{{.FeedName}}</a></p>
  <div class="meta">
    <p>Last updated: <time class="updated" datetime="{{.Updated}}">{{.Updated}}</time></p>
    <p>min_likes: <span class="min-likes">{{.MinLikes}}</span></p>
    <p>source: <a class="source" href="{{.FeedSource}}">{{.FeedSource}}</a></p>
  </div>
</body>
</html>
`))

type indexPage struct {
	Title       string
	Description string
	FeedURL     string
	FeedName    string
	Updated     string
	MinLikes    int
	FeedSource  string
}

// buildIndex renders the static landing page. updated is the feed-level
// updated time so the page and the feed agree.
func buildIndex(site SiteMeta, updated time.Time) ([]byte, error) {
	name := site.FeedPath
	if name == "" {
		name = "feed"
	}
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, indexPage{
		Title:       site.Title,
		Description: site.Description,
		FeedURL:     site.FeedURL(),
		FeedName:    name,
		Updated:     updated.Format(time.RFC3339),
		MinLikes:    site.MinLikes,
		FeedSource:  site.FeedSource,
	})
	if err != nil {
		return nil, fmt.Errorf("execute index template: %w", err)
	}
	return buf.Bytes(), nil
}
