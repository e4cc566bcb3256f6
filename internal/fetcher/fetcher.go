package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/backyonatan-alt/warmonitor/backend/internal/backoff"
	"github.com/backyonatan-alt/warmonitor/backend/internal/config"
)

var tracer = otel.Tracer("github.com/backyonatan-alt/warmonitor/backend/internal/fetcher")

// Recorder receives one observation per upstream request.
type Recorder interface {
	ObserveFetch(source, outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFetch(string, string, time.Duration) {}

// Fetcher holds the shared HTTP client, outbound limiter and config for all upstream sources.
type Fetcher struct {
	client  *http.Client
	cfg     *config.Config
	limiter *rate.Limiter
	rec     Recorder
	now     func() time.Time
}

func New(cfg *config.Config, rec Recorder) *Fetcher {
	return NewWithClient(cfg, &http.Client{Timeout: 30 * time.Second}, rec)
}

// NewWithClient uses the given client; redirects are always surfaced as a bad status.
func NewWithClient(cfg *config.Config, client *http.Client, rec Recorder) *Fetcher {
	if rec == nil {
		rec = nopRecorder{}
	}
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	limit := rate.Inf
	if cfg.RequestRate > 0 {
		limit = rate.Limit(cfg.RequestRate)
	}
	burst := cfg.RequestBurst
	if burst < 1 {
		burst = 1
	}
	return &Fetcher{
		client:  &c,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		rec:     rec,
		now:     time.Now,
	}
}

// Get performs a GET against rawURL and decodes a 200 response body into T.
// It never retries; retry policy belongs to the scheduler.
func Get[T any](ctx context.Context, f *Fetcher, source, rawURL string, header http.Header) (T, error) {
	var out T
	err := f.get(ctx, source, rawURL, header, func(body []byte) error {
		return json.Unmarshal(body, &out)
	})
	return out, err
}

func (f *Fetcher) get(ctx context.Context, source, rawURL string, header http.Header, decode func([]byte) error) error {
	start := f.now()
	ctx, span := tracer.Start(ctx, "fetch "+source, trace.WithAttributes(
		attribute.String("fetch.source", source),
		attribute.String("http.url", rawURL),
	))
	defer span.End()

	body, status, err := f.doOnce(ctx, source, rawURL, header)
	span.SetAttributes(attribute.Int("http.status_code", status))
	if err == nil {
		if derr := decode(body); derr != nil {
			err = &Error{Kind: KindDecode, Source: source, URL: rawURL, StatusCode: status, Err: derr}
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	f.rec.ObserveFetch(source, outcome, f.now().Sub(start))
	return err
}

func (f *Fetcher) doOnce(ctx context.Context, source, rawURL string, header http.Header) ([]byte, int, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing scheme or host in %q", rawURL)
		}
		return nil, 0, &Error{Kind: KindInvalidURL, Source: source, URL: rawURL, Err: err}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, 0, &Error{Kind: KindNetwork, Source: source, URL: rawURL, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, &Error{Kind: KindInvalidURL, Source: source, URL: rawURL, Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, &Error{Kind: KindNetwork, Source: source, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, ok := backoff.ParseRetryAfter(resp.Header, f.now())
		return nil, resp.StatusCode, &Error{
			Kind:          KindRateLimited,
			Source:        source,
			URL:           rawURL,
			StatusCode:    resp.StatusCode,
			RetryAfter:    retryAfter,
			HasRetryAfter: ok,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, &Error{Kind: KindBadStatus, Source: source, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &Error{Kind: KindNetwork, Source: source, URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, resp.StatusCode, nil
}

// apiHeaders are sent to the live war API and the major order endpoint.
func (f *Fetcher) apiHeaders() http.Header {
	h := http.Header{}
	h.Set("X-Super-Client", f.cfg.SuperClient)
	h.Set("X-Application-Contact", f.cfg.ApplicationContact)
	if f.cfg.Locale != "" {
		h.Set("Accept-Language", f.cfg.Locale)
	}
	return h
}
