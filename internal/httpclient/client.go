// Package httpclient provides the shared HTTP client used by the feed source
// and the likes API client.
//
// Callers MUST close response bodies, even on non-2xx status:
//
//	resp, err := httpclient.Default().Do(req)
//	if err != nil {
//	    return err
//	}
//	defer resp.Body.Close()
//
// Every request made through Default has its own 15 second timeout; there is
// no deadline for a whole run beyond the sum of the callers' retry budgets.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// UserAgent identifies likesfeed to upstream servers.
const UserAgent = "likesfeed/0.1 (+https://github.com/abelbrown/likesfeed)"

// RequestTimeout bounds a single HTTP call.
const RequestTimeout = 15 * time.Second

var (
	sharedTransport *http.Transport
	defaultClient   *http.Client
	clientOnce      sync.Once
)

func initClients() {
	clientOnce.Do(func() {
		sharedTransport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          32,
			MaxIdleConnsPerHost:   8,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: RequestTimeout,
		}

		defaultClient = &http.Client{
			Transport: sharedTransport,
			Timeout:   RequestTimeout,
		}
	})
}

// Default returns the shared client with RequestTimeout.
func Default() *http.Client {
	initClients()
	return defaultClient
}

// NewRequest builds a GET request carrying the likesfeed User-Agent and the
// given Accept header.
func NewRequest(ctx context.Context, url, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req, nil
}

// Transient reports whether an HTTP status is worth retrying.
func Transient(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// RetryAfterError is a 429 response that named its own retry delay.
type RetryAfterError struct {
	Status int
	Delay  time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("HTTP status %d (retry after %s)", e.Status, e.Delay)
}

// RetryAfter returns a *RetryAfterError when resp is a 429 carrying a
// positive Retry-After in seconds, and nil otherwise.
func RetryAfter(resp *http.Response) error {
	if resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds <= 0 {
		return nil
	}
	return &RetryAfterError{Status: resp.StatusCode, Delay: time.Duration(seconds) * time.Second}
}
