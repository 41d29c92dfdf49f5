// Package store archives finished matches in a bbolt file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

// ErrNotFound is returned by Get for an unknown match id.
var ErrNotFound = errors.New("match not found")

var matchesBucket = []byte("matches")

// Match is the archived summary of a finished game.
type Match struct {
	ID       string    `json:"id"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Winner   string    `json:"winner,omitempty"`
	Draw     bool      `json:"draw"`
	Turns    int       `json:"turns"`
	Pink     string    `json:"pink,omitempty"`
	Black    string    `json:"black,omitempty"`
	Finished time.Time `json:"finished"`
}

// Bolt is a match archive backed by a single bbolt database.
type Bolt struct {
	db *bbolt.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(matchesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Save stores m under its ID, replacing any earlier record.
func (s *Bolt) Save(m Match) error {
	if m.ID == "" {
		return errors.New("match has no id")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(matchesBucket).Put([]byte(m.ID), data)
	})
}

// Get returns the match stored under id.
func (s *Bolt) Get(id string) (Match, error) {
	var m Match
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(matchesBucket).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &m)
	})
	return m, err
}

// List returns every archived match, oldest finish first.
func (s *Bolt) List() ([]Match, error) {
	var out []Match
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(matchesBucket).ForEach(func(k, v []byte) error {
			var m Match
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode match %s: %w", k, err)
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Finished.Before(out[j].Finished)
	})
	return out, nil
}

// Close releases the database file.
func (s *Bolt) Close() error { return s.db.Close() }
