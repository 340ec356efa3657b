// Package catalog answers movie listing and detail questions for the web
// layer.  Live data comes from TMDB; every successful live answer is mirrored
// to the snapshot store and served from there when TMDB cannot answer.
package catalog

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/moviebook/internal/snapshot"
	"github.com/iliyamo/moviebook/internal/tmdb"
)

const (
	dateLayout   = "2006-01-02"
	recentWindow = 7 * 24 * time.Hour
	bookingDays  = 7
	posterBase   = "https://image.tmdb.org/t/p/"
)

// PlaceholderPoster is served for movies without artwork.
const PlaceholderPoster = "/static/img/placeholder.svg"

// Source is the subset of the TMDB client the catalog uses.
type Source interface {
	Discover(ctx context.Context, params url.Values) ([]tmdb.Movie, error)
	Trending(ctx context.Context) ([]tmdb.Movie, error)
	Movie(ctx context.Context, id int64) (tmdb.Movie, error)
	Search(ctx context.Context, query string) ([]tmdb.Movie, error)
}

// Snapshots is the subset of the snapshot store the catalog uses.
type Snapshots interface {
	Read(key string, out any) bool
	Write(key string, value any)
}

// Service is the movie catalog.
type Service struct {
	src   Source
	snaps Snapshots
	log   logrus.FieldLogger
	now   func() time.Time
}

// New returns a catalog backed by src and snaps.
func New(src Source, snaps Snapshots, log logrus.FieldLogger) *Service {
	return &Service{src: src, snaps: snaps, log: log.WithField("component", "catalog"), now: time.Now}
}

// RecentReleases lists complete movies released during the last week.  It
// tries discover, then the weekly trending list, then the last snapshot.
// The result is never nil.
func (s *Service) RecentReleases(ctx context.Context) []tmdb.Movie {
	today := s.now()
	params := url.Values{
		"language":                 {tmdb.Language},
		"sort_by":                  {"primary_release_date.desc"},
		"primary_release_date.gte": {today.Add(-recentWindow).Format(dateLayout)},
		"primary_release_date.lte": {today.Format(dateLayout)},
		"vote_average.gte":         {"4"},
		"with_release_type":        {"2|3"},
		"page":                     {"1"},
	}

	if movies, err := s.src.Discover(ctx, params); err == nil {
		if complete := completeOnly(movies); len(complete) > 0 {
			s.snaps.Write(snapshot.RecentKey, complete)
			return complete
		}
	}
	if movies, err := s.src.Trending(ctx); err == nil {
		if complete := completeOnly(movies); len(complete) > 0 {
			s.snaps.Write(snapshot.RecentKey, complete)
			return complete
		}
	}

	var cached []tmdb.Movie
	if s.snaps.Read(snapshot.RecentKey, &cached) {
		s.log.Info("serving recent releases from snapshot")
		return completeOnly(cached)
	}
	s.log.Warn("no recent releases available")
	return []tmdb.Movie{}
}

// MovieDetails returns the movie with the given id, live or from its
// snapshot.  The returned movie always has exactly that id.
func (s *Service) MovieDetails(ctx context.Context, id int64) (tmdb.Movie, bool) {
	key := snapshot.MovieKey(id)
	if m, err := s.src.Movie(ctx, id); err == nil && m.ID == id {
		s.snaps.Write(key, m)
		return m, true
	}
	var cached tmdb.Movie
	if s.snaps.Read(key, &cached) && cached.ID == id {
		return cached, true
	}
	return tmdb.Movie{}, false
}

// Search runs a free-text title search.  A blank query returns an empty list
// without calling TMDB; failures also yield an empty list.
func (s *Service) Search(ctx context.Context, query string) []tmdb.Movie {
	query = strings.TrimSpace(query)
	if query == "" {
		return []tmdb.Movie{}
	}
	movies, err := s.src.Search(ctx, query)
	if err != nil {
		return []tmdb.Movie{}
	}
	return completeOnly(movies)
}

// BookingDates returns today and the six following days as YYYY-MM-DD.
func BookingDates(now time.Time) []string {
	dates := make([]string, 0, bookingDays)
	for i := 0; i < bookingDays; i++ {
		dates = append(dates, now.AddDate(0, 0, i).Format(dateLayout))
	}
	return dates
}

// BookingDates is the service variant of the package function using the
// catalog's clock.
func (s *Service) BookingDates() []string { return BookingDates(s.now()) }

// PosterURL builds the image URL for a poster path at the given size, e.g.
// "w200" or "w500".
func PosterURL(path, size string) string {
	if path == "" {
		return PlaceholderPoster
	}
	return posterBase + size + path
}

func completeOnly(movies []tmdb.Movie) []tmdb.Movie {
	out := make([]tmdb.Movie, 0, len(movies))
	for _, m := range movies {
		if m.Complete() {
			out = append(out, m)
		}
	}
	return out
}
