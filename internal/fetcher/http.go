package fetcher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/city-synergy/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher. Zero fields take defaults.
type HTTPOptions struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	BaseBackoff   time.Duration
}

// HTTPFetcher downloads source exports over HTTP(S), pacing requests and
// retrying dropped connections, 429s and 5xx responses.
type HTTPFetcher struct {
	client  *http.Client
	agent   string
	limiter *rate.Limiter
	retry   resilience.Policy
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "synergy-cli/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 5
	}

	retry := resilience.DefaultPolicy()
	if opts.MaxRetries > 0 {
		retry.Attempts = opts.MaxRetries
	}
	if opts.BaseBackoff > 0 {
		retry.Backoff = opts.BaseBackoff
	}
	retry.OnRetry = resilience.LogRetries("fetcher", "download")

	return &HTTPFetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		agent:   opts.UserAgent,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		retry:   retry,
	}
}

// Download fetches rawURL and returns the body of its 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := resilience.Retry(ctx, f.retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", f.agent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.Transient(err, 0)
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	_ = resp.Body.Close()

	err = eris.Errorf("unexpected status %d", resp.StatusCode)
	if resilience.TransientStatus(resp.StatusCode) {
		return nil, resilience.Transient(err, resp.StatusCode)
	}
	return nil, err
}
