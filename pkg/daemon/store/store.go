// Package store provides the Badger-backed dataset catalog.
//
// The catalog keeps one Entry per finished acquisition session, the full
// dataset record keyed by its file path, and arrays written through the
// dataset.Persister interface.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
)

// Key prefixes for different data types
const (
	prefixEntry  = "e:" // session id -> Entry
	prefixRecord = "r:" // dataset path -> zstd(JSON record)
	prefixArrays = "a:" // export dest -> zstd(JSON arrays)
	prefixMeta   = "m:" // schema and other metadata
)

// ErrNotFound is returned when a key is absent from the catalog.
var ErrNotFound = errors.New("not found in catalog")

// Entry describes a finished acquisition session.
type Entry struct {
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	NumSpectra   int       `json:"num_spectra"`
	Reason       string    `json:"reason"`
	Error        string    `json:"error,omitempty"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store is the catalog backed by Badger DB.
type Store struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates a catalog at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}

	s := &Store{db: db, enc: enc, dec: dec}
	if err := s.checkSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

// Put stores an entry.
func (s *Store) Put(entry *Entry) error {
	if entry.SessionID == "" {
		return fmt.Errorf("catalog entry without session id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEntry+entry.SessionID), data)
	})
}

// Get retrieves an entry by session id.
func (s *Store) Get(sessionID string) (*Entry, error) {
	var entry Entry
	if err := s.getJSON(prefixEntry+sessionID, false, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns all entries, most recently finished first.
func (s *Store) List() ([]*Entry, error) {
	var results []*Entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return nil // Skip invalid entries
				}
				results = append(results, &entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	sort.Slice(results, func(i, j int) bool {
		return results[i].FinishedAt.After(results[j].FinishedAt)
	})

	return results, err
}

// Delete removes an entry and the record of its dataset.
func (s *Store) Delete(sessionID string) error {
	entry, err := s.Get(sessionID)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(prefixEntry + sessionID)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixRecord + entry.Path))
	})
}

// Count returns the number of catalog entries.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// PutDataset stores the full record of ds under path. Its signature matches
// the acquisition manager's Store hook.
func (s *Store) PutDataset(path string, ds *dataset.Dataset) error {
	return s.setJSON(prefixRecord+path, true, ds.Record())
}

// Record returns the stored record of the dataset at path.
func (s *Store) Record(path string) (*dataset.Record, error) {
	var r dataset.Record
	if err := s.getJSON(prefixRecord+path, true, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadDataset rebuilds the closed dataset stored under path.
func (s *Store) LoadDataset(path string, opts dataset.Options) (*dataset.Dataset, error) {
	r, err := s.Record(path)
	if err != nil {
		return nil, err
	}
	return dataset.FromRecord(r, opts)
}

// Persist implements dataset.Persister.
func (s *Store) Persist(dest string, a dataset.Arrays) error {
	return s.setJSON(prefixArrays+dest, true, &a)
}

// Arrays returns arrays written by Persist.
func (s *Store) Arrays(dest string) (dataset.Arrays, error) {
	var a dataset.Arrays
	err := s.getJSON(prefixArrays+dest, true, &a)
	return a, err
}

func (s *Store) setJSON(key string, compress bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if compress {
		data = s.enc.EncodeAll(data, nil)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (s *Store) getJSON(key string, compressed bool, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if compressed {
				raw, err := s.dec.DecodeAll(val, nil)
				if err != nil {
					return err
				}
				val = raw
			}
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key[len(prefixEntry):])
	}
	return err
}
