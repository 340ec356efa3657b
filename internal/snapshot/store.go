// Package snapshot mirrors API responses to JSON files on local disk so the
// catalog has something to show when the live service is unreachable.  It is
// strictly best effort: writes never fail the caller and reads report only
// whether a usable value was found.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// RecentKey names the snapshot of the recent-releases listing.
const RecentKey = "recent"

// MovieKey names the snapshot of a single movie.
func MovieKey(id int64) string { return "movie_" + strconv.FormatInt(id, 10) }

// Store reads and writes snapshot files under a directory.  Concurrent writers
// of the same key race and the last rename wins.
type Store struct {
	dir string
	log logrus.FieldLogger
}

// New returns a Store rooted at dir, creating the directory if it can.
func New(dir string, log logrus.FieldLogger) *Store {
	log = log.WithField("component", "snapshot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.WithError(err).WithField("dir", dir).Warn("cannot create snapshot directory")
	}
	return &Store{dir: dir, log: log}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, sanitize(key)+".json")
}

// sanitize maps key onto a plain file name.
func sanitize(key string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, key)
	if clean == "" {
		return "_"
	}
	return clean
}

// Write stores the JSON encoding of value under key.  Errors are logged and
// dropped.
func (s *Store) Write(key string, value any) {
	log := s.log.WithField("key", key)
	data, err := json.Marshal(value)
	if err != nil {
		log.WithError(err).Warn("encode snapshot")
		return
	}
	tmp, err := os.CreateTemp(s.dir, "."+sanitize(key)+"-*.tmp")
	if err != nil {
		log.WithError(err).Warn("write snapshot")
		return
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		if werr == nil {
			werr = cerr
		}
		log.WithError(werr).Warn("write snapshot")
		return
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		log.WithError(err).Warn("write snapshot")
	}
}

// Read decodes the snapshot stored under key into out.  It returns false
// when the file is missing, unreadable or not valid JSON; out may then be
// partially filled and should be discarded.
func (s *Store) Read(key string, out any) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).WithField("key", key).Warn("read snapshot")
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("corrupt snapshot")
		return false
	}
	return true
}
