// Package likes counts an article's likes through the paginated likes API
// (GET {base}/items/{id}/likes?per_page=P&page=N).
package likes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/likesfeed/internal/apperr"
	"github.com/abelbrown/likesfeed/internal/httpclient"
	"github.com/abelbrown/likesfeed/internal/logging"
	"github.com/abelbrown/likesfeed/internal/retry"
)

// DefaultBaseURL is the public Qiita API v2 root.
const DefaultBaseURL = "https://qiita.com/api/v2"

// TokenHint is appended to Unauthorized errors.
const TokenHint = "set QIITA_API_TOKEN to an access token"

const maxPageBytes = 4 << 20

// Options configures a Client.
type Options struct {
	BaseURL  string
	Token    string
	PerPage  int
	MaxPages int

	// MinInterval spaces requests across all lookups. Zero disables limiting.
	MinInterval time.Duration
	Policy      retry.Policy
	HTTPClient  *http.Client
}

// Client fetches like counts.
type Client struct {
	baseURL  string
	token    string
	perPage  int
	maxPages int
	policy   retry.Policy
	client   *http.Client
	limiter  *rate.Limiter
}

// New creates a Client from opts.
func New(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = httpclient.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.MinInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	perPage := opts.PerPage
	if perPage < 1 {
		perPage = 1
	}
	maxPages := opts.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}
	return &Client{
		baseURL:  base,
		token:    opts.Token,
		perPage:  perPage,
		maxPages: maxPages,
		policy:   opts.Policy,
		client:   client,
		limiter:  limiter,
	}
}

// CountLikes follows the likes pages of itemID until a short page or the
// page cap, and returns the total. It fails with apperr.Unauthorized on a
// 401 and apperr.SourceUnavailable once retries are exhausted.
func (c *Client) CountLikes(ctx context.Context, itemID string) (int, error) {
	total := 0
	for page := 1; page <= c.maxPages; page++ {
		n, err := c.fetchPage(ctx, itemID, page)
		if err != nil {
			return 0, err
		}
		total += n
		if n < c.perPage {
			return total, nil
		}
	}
	logging.Warn("likes page cap reached", "item_id", itemID, "total", total, "pages", c.maxPages)
	return total, nil
}

// errPermanent marks a failure that retrying will not fix.
var errPermanent = errors.New("permanent")

// fetchPage returns the number of likes on one page.
func (c *Client) fetchPage(ctx context.Context, itemID string, page int) (int, error) {
	log := logging.WithPrefix("likes")
	endpoint := fmt.Sprintf("%s/items/%s/likes?%s", c.baseURL, url.PathEscape(itemID), url.Values{
		"per_page": {strconv.Itoa(c.perPage)},
		"page":     {strconv.Itoa(page)},
	}.Encode())

	seq := c.policy.Start()
	for seq.Next() {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, apperr.ForItem(apperr.SourceUnavailable, "likes", itemID, fmt.Errorf("rate limiter wait: %w", err))
		}

		n, err := c.get(ctx, endpoint)
		if err == nil {
			seq.Succeed()
			return n, nil
		}
		if errors.Is(err, errUnauthorized) {
			return 0, apperr.ForItem(apperr.Unauthorized, "likes", itemID, fmt.Errorf("%w; %s", err, TokenHint))
		}

		var delay time.Duration
		var again bool
		var ra *httpclient.RetryAfterError
		switch {
		case errors.As(err, &ra):
			delay, again = seq.FailAfter(err, ra.Delay)
		default:
			delay, again = seq.Fail(err, !errors.Is(err, errPermanent) && ctx.Err() == nil)
		}
		if !again {
			break
		}
		log.Warn("retrying likes", "item_id", itemID, "page", page, "attempt", seq.Attempt(), "backoff", delay, "err", err)
		if err := retry.Wait(ctx, delay); err != nil {
			return 0, apperr.ForItem(apperr.SourceUnavailable, "likes", itemID, err)
		}
	}
	return 0, apperr.ForItem(apperr.SourceUnavailable, "likes", itemID, fmt.Errorf("page %d: %w", page, seq.Err()))
}

var errUnauthorized = errors.New("likes API returned 401 Unauthorized")

func (c *Client) get(ctx context.Context, endpoint string) (int, error) {
	req, err := httpclient.NewRequest(ctx, endpoint, "application/json")
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", errPermanent, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return 0, errUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		if err := httpclient.RetryAfter(resp); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("HTTP status %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		err := fmt.Errorf("HTTP status %d", resp.StatusCode)
		if !httpclient.Transient(resp.StatusCode) {
			err = fmt.Errorf("%w: %v", errPermanent, err)
		}
		return 0, err
	}

	// Only the page length matters; the like objects are not inspected.
	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return 0, fmt.Errorf("parse likes page: %w", err)
	}
	return len(page), nil
}

// CountAll resolves likes for every distinct id with at most concurrency
// lookups in flight. Each lookup runs its own retry sequence. The first
// permanent failure cancels the remaining lookups and is returned.
func (c *Client) CountAll(ctx context.Context, ids []string, concurrency int) (map[string]int, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	counts := make(map[string]int, len(ids))
	queued := make(map[string]bool, len(ids))

	for _, id := range ids {
		if queued[id] {
			continue
		}
		queued[id] = true

		g.Go(func() error {
			n, err := c.CountLikes(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			counts[id] = n
			mu.Unlock()
			logging.Debug("likes counted", "item_id", id, "likes", n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}
