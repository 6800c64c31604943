// Package fetch retrieves the upstream popular-articles feed.
//
// The feed is fetched with bounded retries and parsed with gofeed into
// model.Candidate values. Likes counts are filled in later by package likes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/httpclient"
	"github.com/abelbrown/likesfeed/internal/logging"
	"github.com/abelbrown/likesfeed/internal/model"
	"github.com/abelbrown/likesfeed/internal/retry"
)

// maxFeedBytes caps the feed body read into memory.
const maxFeedBytes = 10 << 20

// Source fetches candidates from one Atom/RSS feed URL.
type Source struct {
	url    string
	client *http.Client
	policy retry.Policy
}

// NewSource creates a Source. A nil client uses httpclient.Default.
func NewSource(url string, client *http.Client, policy retry.Policy) *Source {
	if client == nil {
		client = httpclient.Default()
	}
	return &Source{url: url, client: client, policy: policy}
}

// URL returns the feed URL.
func (s *Source) URL() string { return s.url }

// errPermanent marks a failure that retrying will not fix.
var errPermanent = errors.New("permanent")

// Fetch downloads and parses the feed. It fails with
// apperr.SourceUnavailable once the retry policy is exhausted.
func (s *Source) Fetch(ctx context.Context) ([]model.Candidate, error) {
	log := logging.WithPrefix("fetch")

	seq := s.policy.Start()
	for seq.Next() {
		body, err := s.get(ctx)
		if err == nil {
			seq.Succeed()
			return parse(body)
		}

		var delay time.Duration
		var again bool
		var ra *httpclient.RetryAfterError
		if errors.As(err, &ra) {
			delay, again = seq.FailAfter(err, ra.Delay)
		} else {
			delay, again = seq.Fail(err, !errors.Is(err, errPermanent) && ctx.Err() == nil)
		}
		if !again {
			break
		}
		log.Warn("retrying feed", "url", s.url, "attempt", seq.Attempt(), "backoff", delay, "err", err)
		if err := retry.Wait(ctx, delay); err != nil {
			return nil, apperr.New(apperr.SourceUnavailable, "fetch", err)
		}
	}
	return nil, apperr.New(apperr.SourceUnavailable, "fetch", fmt.Errorf("%s: %w", s.url, seq.Err()))
}

func (s *Source) get(ctx context.Context) ([]byte, error) {
	req, err := httpclient.NewRequest(ctx, s.url, "application/atom+xml")
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", errPermanent, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := httpclient.RetryAfter(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("HTTP status %d", resp.StatusCode)
		if !httpclient.Transient(resp.StatusCode) {
			err = fmt.Errorf("%w: %v", errPermanent, err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parse converts a feed document into candidates. Entries without a title
// are skipped; entries whose link carries no item id are kept with an empty
// ItemID so the merge can count them as malformed.
func parse(body []byte) ([]model.Candidate, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, apperr.New(apperr.SourceUnavailable, "fetch", fmt.Errorf("parse feed: %w", err))
	}

	out := make([]model.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		c, ok := convertItem(item)
		if !ok {
			logging.Warn("skipping feed entry without title", "link", item.Link)
			continue
		}
		out = append(out, c)
	}
	logging.Info("feed parsed", "entries", len(feed.Items), "candidates", len(out))
	return out, nil
}

func convertItem(item *gofeed.Item) (model.Candidate, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return model.Candidate{}, false
	}

	link := strings.TrimSpace(item.Link)
	c := model.Candidate{
		ItemID: ExtractItemID(link),
		Title:  title,
		Link:   link,
	}

	// Prefer full content, fall back to the summary.
	c.Summary = strings.TrimSpace(item.Content)
	if c.Summary == "" {
		c.Summary = strings.TrimSpace(item.Description)
	}

	if item.Author != nil {
		c.AuthorName = strings.TrimSpace(item.Author.Name)
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		c.AuthorName = strings.TrimSpace(item.Authors[0].Name)
	}

	if item.PublishedParsed != nil {
		c.Published = *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		c.Updated = *item.UpdatedParsed
	}
	return c, true
}

// ExtractItemID returns the path segment after "/items/" in an article link,
// without query or fragment, or "" when the link has none.
func ExtractItemID(link string) string {
	const marker = "/items/"
	i := strings.Index(link, marker)
	if i < 0 {
		return ""
	}
	id := link[i+len(marker):]
	if j := strings.IndexAny(id, "?#"); j >= 0 {
		id = id[:j]
	}
	id = strings.TrimSuffix(id, "/")
	if strings.Contains(id, "/") {
		id = id[:strings.Index(id, "/")]
	}
	return id
}
