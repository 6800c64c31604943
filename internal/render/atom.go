package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/abelbrown/likesfeed/internal/model"
)

type atomFeed struct {
	XMLName  xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	ID       string      `xml:"id"`
	Title    string      `xml:"title"`
	Subtitle string      `xml:"subtitle,omitempty"`
	Updated  string      `xml:"updated"`
	Links    []atomLink  `xml:"link"`
	Entries  []atomEntry `xml:"entry"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr,omitempty"`
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	ID      string   `xml:"id"`
	Title   string   `xml:"title"`
	Link    atomLink `xml:"link"`
	Updated string   `xml:"updated"`
	Summary atomText `xml:"summary"`
}

type atomText struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// buildFeed renders the Atom document and returns it with the feed-level
// updated time.
func buildFeed(set []model.Article, site SiteMeta, now time.Time) ([]byte, time.Time, error) {
	entries := make([]atomEntry, 0, len(set))
	var latest time.Time
	for _, a := range set {
		updated := entryUpdated(a, now)
		if updated.After(latest) {
			latest = updated
		}
		entries = append(entries, atomEntry{
			ID:      a.Link,
			Title:   a.Title,
			Link:    atomLink{Rel: "alternate", Type: "text/html", Href: a.Link},
			Updated: updated.Format(time.RFC3339),
			Summary: atomText{Type: "html", Body: summaryHTML(a)},
		})
	}
	if latest.IsZero() {
		latest = now
	}

	feed := atomFeed{
		ID:       site.FeedID(),
		Title:    site.Title,
		Subtitle: strings.TrimSpace(site.Description),
		Updated:  latest.Format(time.RFC3339),
		Links: []atomLink{
			{Rel: "self", Type: "application/atom+xml", Href: site.FeedURL()},
			{Rel: "alternate", Type: "text/html", Href: site.IndexURL()},
		},
		Entries: entries,
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return nil, time.Time{}, fmt.Errorf("encode atom: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), latest, nil
}

// summaryHTML is the entry summary shown by feed readers:
//
//	Likes: 12<br/>Author: <a href="https://qiita.com/alice">Alice</a><br/>Published: ...<br/>Updated: ...<br/>content
//
// The content is the source's HTML and is passed through; the other values
// are escaped.
func summaryHTML(a model.Article) string {
	var b strings.Builder
	b.WriteString("Likes: " + strconv.Itoa(a.LikesCount))

	b.WriteString("<br/>Author: ")
	name := strings.TrimSpace(a.AuthorName)
	profile := authorURL(a.Link)
	switch {
	case name != "" && profile != "":
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(profile), html.EscapeString(name))
	case name != "":
		b.WriteString(html.EscapeString(name))
	default:
		b.WriteString("unknown")
	}

	b.WriteString("<br/>Published: " + formatOptional(a.Published))
	b.WriteString("<br/>Updated: " + formatOptional(a.Updated))

	b.WriteString("<br/>")
	if strings.TrimSpace(a.Summary) == "" {
		b.WriteString("(no content)")
	} else {
		b.WriteString(a.Summary)
	}
	return b.String()
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}

// authorURL derives the author's profile URL from an article link of the
// form <origin>/<user>/items/<id>. It returns "" for other shapes.
func authorURL(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	i := strings.Index(link, "/items/")
	if i < 0 {
		return ""
	}
	profile := link[:i]
	slash := strings.LastIndex(profile, "/")
	if slash < 0 || slash == len(profile)-1 || strings.HasSuffix(profile[:slash], ":/") {
		return ""
	}
	return profile
}
