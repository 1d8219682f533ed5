// Package players records every profile that completed a login.
package players

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketPlayers = []byte("players")
	bucketNames   = []byte("names")
)

var ErrNotFound = errors.New("players: not found")

// Record is the stored form of a profile.
type Record struct {
	ID        uuid.UUID `cbor:"1,keyasint"`
	Name      string    `cbor:"2,keyasint"`
	Textures  string    `cbor:"3,keyasint,omitempty"`
	Signature string    `cbor:"4,keyasint,omitempty"`
	Online    bool      `cbor:"5,keyasint"`
	FirstSeen time.Time `cbor:"6,keyasint"`
	LastSeen  time.Time `cbor:"7,keyasint"`
	Logins    uint32    `cbor:"8,keyasint"`
}

// Login is what a completed handshake knows about a player.
type Login struct {
	ID        uuid.UUID
	Name      string
	Textures  string
	Signature string
	Online    bool // Verified by the session server.
}

// Store is a bbolt backed profile table with a name index.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("players: create data directory: %w", err)
		}
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("players: open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketPlayers, bucketNames} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("players: create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nameKey(name string) []byte {
	return []byte(strings.ToLower(name))
}

// Seen records l at time at and returns the updated record. A renamed
// profile moves its name index entry.
func (s *Store) Seen(l Login, at time.Time) (Record, error) {
	var rec Record
	err := s.db.Update(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketPlayers)
		nb := tx.Bucket(bucketNames)

		if data := pb.Get(l.ID[:]); data != nil {
			if err := cbor.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("players: decode %s: %w", l.ID, err)
			}
			if !strings.EqualFold(rec.Name, l.Name) {
				if err := nb.Delete(nameKey(rec.Name)); err != nil {
					return err
				}
			}
		} else {
			rec = Record{ID: l.ID, FirstSeen: at}
		}

		rec.Name = l.Name
		rec.Online = l.Online
		rec.LastSeen = at
		rec.Logins++
		if l.Textures != "" {
			rec.Textures = l.Textures
			rec.Signature = l.Signature
		}

		data, err := cbor.Marshal(rec)
		if err != nil {
			return err
		}
		if err := pb.Put(l.ID[:], data); err != nil {
			return err
		}
		return nb.Put(nameKey(l.Name), l.ID[:])
	})
	return rec, err
}

// Get returns the record for id.
func (s *Store) Get(id uuid.UUID) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketPlayers).Get(id[:])
		if data == nil {
			return ErrNotFound
		}
		return cbor.Unmarshal(data, &rec)
	})
	return rec, err
}

// Lookup returns the record last seen under name, ignoring case.
func (s *Store) Lookup(name string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketNames).Get(nameKey(name))
		if id == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketPlayers).Get(id)
		if data == nil {
			return ErrNotFound
		}
		return cbor.Unmarshal(data, &rec)
	})
	return rec, err
}

// Count returns the number of known profiles.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketPlayers).Stats().KeyN
		return nil
	})
	return n, err
}
