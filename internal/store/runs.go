package store

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/go-ap/errors"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Run records one sync attempt for a channel.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Channel    string    `json:"channel"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Fetched counts raw records, Stored the ones that validated.
	Fetched int    `json:"fetched"`
	Stored  int    `json:"stored"`
	Invalid int    `json:"invalid"`
	Error   string `json:"error,omitempty"`
}

// NewRun starts a run record with a fresh ID.
func NewRun(channel string, started time.Time) Run {
	return Run{ID: uuid.New(), Channel: channel, StartedAt: started}
}

// OK reports whether the run finished without error.
func (r Run) OK() bool { return r.Error == "" }

func runKey(r Run) []byte {
	k := append([]byte(r.StartedAt.UTC().Format(runTimeFormat)), keySep)
	return append(k, r.ID.String()...)
}

// RecordRun stores r under its channel.
func (s *Store) RecordRun(r Run) error {
	if r.Channel == "" {
		return errors.Newf("run without channel")
	}
	if r.ID == uuid.Nil {
		return errors.Newf("run without id")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(runsBucket).CreateBucketIfNotExists([]byte(r.Channel))
		if err != nil {
			return errors.Annotatef(err, "unable to create run bucket for channel %s", r.Channel)
		}
		return b.Put(runKey(r), raw)
	})
}

// Runs returns up to limit runs, newest first. An empty channel reads all
// channels; limit <= 0 means no limit.
func (s *Store) Runs(channel string, limit int) ([]Run, error) {
	runs := make([]Run, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(runsBucket)
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
			c := b.Cursor()
			n := 0
			for k, raw := c.Last(); k != nil && (limit <= 0 || n < limit); k, raw = c.Prev() {
				var r Run
				if err := json.Unmarshal(raw, &r); err != nil {
					return errors.Annotatef(err, "invalid run %s", k)
				}
				runs = append(runs, r)
				n++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// LastRun returns the newest run for channel.
func (s *Store) LastRun(channel string) (Run, bool, error) {
	runs, err := s.Runs(channel, 1)
	if err != nil || len(runs) == 0 {
		return Run{}, false, err
	}
	return runs[0], true, nil
}
