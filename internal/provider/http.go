package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "mcp-guardian/1.0"
	maxBodyBytes     = 8 << 20
)

// fetcher issues rate-limited GET requests and retries transient failures
type fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxTries  uint
}

// HTTPOptions tunes the shared HTTP behaviour of remote providers
type HTTPOptions struct {
	Client *http.Client
	// RequestsPerSecond caps outbound requests per provider; zero disables it.
	RequestsPerSecond float64
	MaxTries          uint
	UserAgent         string
}

func newFetcher(opts HTTPOptions) *fetcher {
	f := &fetcher{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		maxTries:  opts.MaxTries,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.maxTries == 0 {
		f.maxTries = 3
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return f
}

// statusError is a non-2xx response
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.url, e.code)
}

// get fetches url and returns the body. Transport errors, 429 and 5xx are
// retried with exponential backoff until ctx expires or tries run out.
func (f *fetcher) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	op := func() ([]byte, error) {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
				return nil, backoff.RetryAfter(secs)
			}
			return nil, &statusError{url: url, code: resp.StatusCode}
		case resp.StatusCode >= 500:
			return nil, &statusError{url: url, code: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(&statusError{url: url, code: resp.StatusCode})
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return body, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(f.maxTries))
}

// normalizeGitHubURL converts various GitHub URL formats to canonical form.
// Non-GitHub URLs yield "".
func normalizeGitHubURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)

	switch {
	case strings.HasPrefix(rawURL, "git://"):
		rawURL = "https://" + strings.TrimPrefix(rawURL, "git://")
	case strings.HasPrefix(rawURL, "git+"):
		rawURL = strings.TrimPrefix(rawURL, "git+")
	case strings.HasPrefix(rawURL, "git@github.com:"):
		rawURL = "https://github.com/" + strings.TrimPrefix(rawURL, "git@github.com:")
	case strings.HasPrefix(rawURL, "github:"):
		rawURL = "https://github.com/" + strings.TrimPrefix(rawURL, "github:")
	}
	rawURL = strings.TrimPrefix(rawURL, "ssh://git@")
	if strings.HasPrefix(rawURL, "github.com/") {
		rawURL = "https://" + rawURL
	}
	rawURL = strings.TrimSuffix(strings.TrimSuffix(rawURL, "/"), ".git")

	if !strings.Contains(rawURL, "github.com/") {
		return ""
	}
	return rawURL
}
