// Package store persists validated events and sync run records in a bbolt
// database.
//
// Layout:
//
//	events/<channel>/<start UTC 20060102T150405Z>|<instance id> -> model.Event JSON
//	runs/<channel>/<started UTC, nanoseconds>|<run id>         -> Run JSON
package store

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-ap/errors"
	bolt "go.etcd.io/bbolt"

	"bellweaver/internal/model"
)

var (
	eventsBucket = []byte("events")
	runsBucket   = []byte("runs")
)

const (
	keyTimeFormat = "20060102T150405Z"
	runTimeFormat = "20060102T150405.000000000Z"
	keySep        = '|'
)

// Store is safe for concurrent use; bbolt serializes writers.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the database at path and ensures the root buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Annotatef(err, "could not open db %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Annotatef(err, "unable to create root bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func eventKey(ev model.Event) []byte {
	k := append([]byte(ev.Start.UTC().Format(keyTimeFormat)), keySep)
	return append(k, ev.InstanceID...)
}

func timeKey(t time.Time) []byte {
	return []byte(t.UTC().Format(keyTimeFormat))
}

// ReplaceRange removes the channel's events starting in [from, to) and then
// stores events. It runs in one transaction, so readers never see a
// partially replaced window. It returns the number of events removed.
func (s *Store) ReplaceRange(channel string, from, to time.Time, events []model.Event) (int, error) {
	if channel == "" {
		return 0, errors.Newf("empty channel")
	}
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(eventsBucket).CreateBucketIfNotExists([]byte(channel))
		if err != nil {
			return errors.Annotatef(err, "unable to create bucket for channel %s", channel)
		}

		var stale [][]byte
		min, max := timeKey(from), timeKey(to)
		c := b.Cursor()
		for k, _ := c.Seek(min); k != nil && bytes.Compare(k[:len(max)], max) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)

		for _, ev := range events {
			raw, err := json.Marshal(ev)
			if err != nil {
				return errors.Annotatef(err, "unable to encode event %s", ev.InstanceID)
			}
			if err := b.Put(eventKey(ev), raw); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// Events returns events starting in [from, to) ordered by start. An empty
// channel reads every channel.
func (s *Store) Events(channel string, from, to time.Time) ([]model.Event, error) {
	events := make([]model.Event, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(eventsBucket)
		var names [][]byte
		if channel != "" {
			names = [][]byte{[]byte(channel)}
		} else {
			names = bucketNames(root)
		}
		for _, name := range names {
			b := root.Bucket(name)
			if b == nil {
				continue
			}
			loaded, err := loadRange(b, timeKey(from), timeKey(to))
			if err != nil {
				return errors.Annotatef(err, "channel %s", name)
			}
			events = append(events, loaded...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

func loadRange(b *bolt.Bucket, min, max []byte) ([]model.Event, error) {
	var out []model.Event
	c := b.Cursor()
	for k, raw := c.Seek(min); k != nil && bytes.Compare(k[:len(max)], max) < 0; k, raw = c.Next() {
		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, errors.Annotatef(err, "invalid item %s", k)
		}
		out = append(out, ev)
	}
	return out, nil
}

// Channels lists the channels that have stored events.
func (s *Store) Channels() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range bucketNames(tx.Bucket(eventsBucket)) {
			out = append(out, string(name))
		}
		return nil
	})
	return out, err
}

func bucketNames(b *bolt.Bucket) [][]byte {
	var names [][]byte
	_ = b.ForEach(func(k, v []byte) error {
		if v == nil {
			names = append(names, append([]byte(nil), k...))
		}
		return nil
	})
	return names
}
