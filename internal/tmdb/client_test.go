package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts.BaseURL = srv.URL
	if opts.APIKey == "" {
		opts.APIKey = "k"
	}
	opts.InitialBackoff = time.Millisecond
	c, err := New(opts, quietLog())
	require.NoError(t, err)
	return c
}

func TestGetSendsKeyLanguageAndUserAgent(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"page":1,"results":[]}`))
	}, Options{APIKey: "secret"})

	movies, err := c.Discover(context.Background(), url.Values{"page": {"1"}})
	require.NoError(t, err)
	assert.Empty(t, movies)
	assert.NotNil(t, movies)

	require.NotNil(t, got)
	assert.Equal(t, "/discover/movie", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "secret", q.Get("api_key"))
	assert.Equal(t, "en-US", q.Get("language"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "MovieBook/1.0", got.Header.Get("User-Agent"))
}

func TestRetriesRetryableStatuses(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503, 504} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var hits int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&hits, 1) < 3 {
					w.WriteHeader(status)
					return
				}
				_, _ = w.Write([]byte(`{"id":7,"title":"Seven","poster_path":"/p.jpg"}`))
			}, Options{})

			m, err := c.Movie(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, int64(7), m.ID)
			assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
		})
	}
}

func TestStopsAfterFourAttempts(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Options{})

	_, err := c.Trending(context.Background())
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}, Options{})

	_, err := c.Movie(context.Background(), 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSchemaValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(c *Client) error
	}{
		{"list without results", `{"page":1}`, func(c *Client) error {
			_, err := c.Trending(context.Background())
			return err
		}},
		{"detail without id", `{"title":"x"}`, func(c *Client) error {
			_, err := c.Movie(context.Background(), 3)
			return err
		}},
		{"not json", `<html>`, func(c *Client) error {
			_, err := c.Search(context.Background(), "x")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, Options{})
			assert.ErrorIs(t, tt.call(c), ErrInvalidResponse)
		})
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, Options{MaxAttempts: 1, BreakerFailures: 2, BreakerOpenFor: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := c.Trending(context.Background())
		require.Error(t, err)
	}
	_, err := c.Trending(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, Options{BreakerFailures: 1})

	for i := 0; i < 3; i++ {
		_, err := c.Movie(context.Background(), 9)
		var se *StatusError
		require.True(t, errors.As(err, &se))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Trending(ctx)
	require.Error(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&hits), int32(1))
}

func TestNewRejectsMissingCAFile(t *testing.T) {
	_, err := New(Options{CAFile: "/nonexistent/ca.pem"}, quietLog())
	assert.Error(t, err)
}

func TestMovieComplete(t *testing.T) {
	assert.True(t, Movie{ID: 1, Title: "a", PosterPath: "/p"}.Complete())
	assert.False(t, Movie{ID: 1, Title: "a"}.Complete())
	assert.False(t, Movie{Title: "a", PosterPath: "/p"}.Complete())
	assert.False(t, Movie{ID: 1, PosterPath: "/p"}.Complete())
}

func TestGenreIDList(t *testing.T) {
	assert.Equal(t, []int{28}, Movie{GenreIDs: []int{28}}.GenreIDList())
	assert.Equal(t, []int{35, 18}, Movie{Genres: []Genre{{ID: 35}, {ID: 18}}}.GenreIDList())
}
