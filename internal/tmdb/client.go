// Package tmdb is a small client for The Movie Database v3 API.  It issues
// GET requests with a bounded retry policy, a per-attempt timeout and a
// circuit breaker, validates responses against the Movie schema and reports
// every failure as an error that callers are expected to fall back from.
package tmdb

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL is the TMDB v3 API root.
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// Language is sent with every request.
	Language  = "en-US"
	userAgent = "MovieBook/1.0"
	// maxBodyBytes bounds how much of a response is read.
	maxBodyBytes = 4 << 20
)

// ErrInvalidResponse is returned when a 2xx body does not match the schema.
var ErrInvalidResponse = errors.New("tmdb: invalid response")

// StatusError carries a non-2xx HTTP status.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: GET %s: status %d", e.Path, e.Status)
}

// Retryable reports whether the status is one the client retries.
func (e *StatusError) Retryable() bool { return retryableStatus[e.Status] }

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a Client.  Zero values fall back to the defaults noted
// on each field.
type Options struct {
	BaseURL        string        // DefaultBaseURL
	APIKey         string        // sent as the api_key query parameter
	Timeout        time.Duration // per attempt, 12s
	MaxAttempts    int           // total attempts including the first, 4
	InitialBackoff time.Duration // delay before the first retry, 600ms
	CAFile         string        // PEM bundle of trusted roots; system roots when empty
	// BreakerFailures is the number of consecutive failed calls that opens
	// the breaker, 5.  BreakerOpenFor is how long it stays open, 30s.
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	HTTPClient      *http.Client // overrides the transport built from Timeout and CAFile
}

// Client talks to TMDB.  It is safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	http        *http.Client
	maxAttempts int
	backoff     time.Duration
	breaker     *gobreaker.CircuitBreaker
	log         logrus.FieldLogger
}

// New builds a Client.  It fails only when CAFile is set and cannot be
// loaded.
func New(opts Options, log logrus.FieldLogger) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 600 * time.Millisecond
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpenFor <= 0 {
		opts.BreakerOpenFor = 30 * time.Second
	}

	hc := opts.HTTPClient
	if hc == nil {
		tlsConf := &tls.Config{MinVersion: tls.VersionTLS12}
		if opts.CAFile != "" {
			pool, err := loadRoots(opts.CAFile)
			if err != nil {
				return nil, err
			}
			tlsConf.RootCAs = pool
		}
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = tlsConf
		hc = &http.Client{Timeout: opts.Timeout, Transport: tr}
	}

	log = log.WithField("component", "tmdb")
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		http:        hc,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.InitialBackoff,
		log:         log,
	}
	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "tmdb",
		Timeout: opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
		},
	})
	return c, nil
}

func loadRoots(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tmdb: read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tmdb: no certificates in %s", path)
	}
	return pool, nil
}

// answered wraps a definitive client-side answer (a non-retryable status or
// a schema mismatch) so the breaker does not count it as unavailability.
type answered struct{ err error }

// Get fetches path with params and decodes the JSON body into out.  A nil
// error means out is filled.  Failures are logged here; callers only choose
// their fallback.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := c.getWithRetry(ctx, path, params)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Retryable() {
				return answered{err}, nil
			}
			return nil, err
		}
		return body, nil
	})
	if err == nil {
		if a, ok := res.(answered); ok {
			err = a.err
		}
	}
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("request failed")
		return err
	}
	if err := json.Unmarshal(res.([]byte), out); err != nil {
		c.log.WithError(err).WithField("path", path).Warn("decode failed")
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// getWithRetry performs up to maxAttempts GETs.  Transport errors and
// retryable statuses are retried with exponential backoff; anything else is
// returned at once.
func (c *Client) getWithRetry(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u, err := c.url(path, params)
	if err != nil {
		return nil, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	attempt := 0
	var body []byte
	op := func() error {
		attempt++
		var err error
		body, err = c.do(ctx, u, path)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.WithError(err).WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt,
			"wait":    wait.String(),
		}).Debug("retrying")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, u, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("tmdb: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Status: resp.StatusCode}
	}
	return body, nil
}

func (c *Client) url(path string, params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", err
	}
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("api_key", c.apiKey)
	if q.Get("language") == "" {
		q.Set("language", Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) list(ctx context.Context, path string, params url.Values) ([]Movie, error) {
	var lr listResponse
	if err := c.Get(ctx, path, params, &lr); err != nil {
		return nil, err
	}
	if lr.Results == nil {
		c.log.WithField("path", path).Warn("response has no results array")
		return nil, ErrInvalidResponse
	}
	return *lr.Results, nil
}

// Discover queries /discover/movie.
func (c *Client) Discover(ctx context.Context, params url.Values) ([]Movie, error) {
	return c.list(ctx, "/discover/movie", params)
}

// Trending queries /trending/movie/week.
func (c *Client) Trending(ctx context.Context) ([]Movie, error) {
	return c.list(ctx, "/trending/movie/week", nil)
}

// Search queries /search/movie for a free-text title.
func (c *Client) Search(ctx context.Context, query string) ([]Movie, error) {
	return c.list(ctx, "/search/movie", url.Values{"query": {query}})
}

// Movie fetches a single movie.  A body without an id is invalid.
func (c *Client) Movie(ctx context.Context, id int64) (Movie, error) {
	var m Movie
	if err := c.Get(ctx, "/movie/"+strconv.FormatInt(id, 10), nil, &m); err != nil {
		return Movie{}, err
	}
	if m.ID == 0 {
		c.log.WithField("movie_id", id).Warn("response has no movie id")
		return Movie{}, ErrInvalidResponse
	}
	return m, nil
}
