// Package docstore wraps BoltDB as a small document store: named collections
// of JSON documents addressed by key, with optional secondary indexes and
// cursor-based paging. It mimics the access patterns of a managed key-value
// store: point reads, upserts, partial updates, indexed queries and capped
// scans. There are no transactions across collections.
package docstore

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// QueryLimitCap bounds indexed query pages.
	QueryLimitCap = 100
	// ScanLimitCap bounds scan pages; scans are expensive and capped lower.
	ScanLimitCap = 50

	indexSep = 0x00
)

// Collection declares a named collection and its secondary indexes.
type Collection struct {
	Name    string
	Indexes []string
}

// Store is a Bolt-backed document store.
type Store struct {
	db          *bolt.DB
	collections map[string][]string
}

// Open initializes the Bolt file and creates the collection and index buckets.
func Open(path string, collections ...Collection) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	names := make(map[string][]string, len(collections))
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, col := range collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(col.Name)); err != nil {
				return err
			}
			for _, idx := range col.Indexes {
				if _, err := tx.CreateBucketIfNotExists(indexBucket(col.Name, idx)); err != nil {
					return err
				}
			}
			names[col.Name] = col.Indexes
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, collections: names}, nil
}

// Get returns the document and a found flag; a missing key is not an error.
func (s *Store) Get(col, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, bolt.ErrDatabaseNotOpen
	}
	var doc []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("unknown collection %s", col)
		}
		if v := b.Get([]byte(key)); v != nil {
			doc = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, doc != nil, nil
}

// Put upserts a document together with its index entries. Index values for a
// given key must not change across Puts; records that need re-indexing must
// be deleted and recreated.
func (s *Store) Put(col, key string, doc []byte, indexes map[string]string) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("unknown collection %s", col)
		}
		if err := b.Put([]byte(key), doc); err != nil {
			return err
		}
		for idx, value := range indexes {
			ib := tx.Bucket(indexBucket(col, idx))
			if ib == nil {
				return fmt.Errorf("unknown index %s.%s", col, idx)
			}
			if err := ib.Put(indexKey(value, key), []byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Update applies mutate to the stored document in a single transaction and
// returns the new document. The found flag is false when the key is absent;
// mutate is not called in that case.
func (s *Store) Update(col, key string, mutate func([]byte) ([]byte, error)) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, bolt.ErrDatabaseNotOpen
	}
	var (
		updated []byte
		found   bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("unknown collection %s", col)
		}
		current := b.Get([]byte(key))
		if current == nil {
			return nil
		}
		found = true
		next, err := mutate(append([]byte(nil), current...))
		if err != nil {
			return err
		}
		updated = next
		return b.Put([]byte(key), next)
	})
	if err != nil {
		return nil, false, err
	}
	return updated, found, nil
}

// Delete removes a document and its index entries. Deleting an absent key is
// a no-op.
func (s *Store) Delete(col, key string, indexes map[string]string) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("unknown collection %s", col)
		}
		if err := b.Delete([]byte(key)); err != nil {
			return err
		}
		for idx, value := range indexes {
			ib := tx.Bucket(indexBucket(col, idx))
			if ib == nil {
				return fmt.Errorf("unknown index %s.%s", col, idx)
			}
			if err := ib.Delete(indexKey(value, key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryByIndex returns one page of documents whose index entry equals value.
// The cursor is opaque; empty means the result set is exhausted. Page size is
// capped at QueryLimitCap.
func (s *Store) QueryByIndex(col, idx, value string, limit int, cursor string) ([][]byte, string, error) {
	if s == nil || s.db == nil {
		return nil, "", bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 || limit > QueryLimitCap {
		limit = QueryLimitCap
	}
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	prefix := append([]byte(value), indexSep)
	var (
		docs [][]byte
		next string
	)
	err = s.db.View(func(tx *bolt.Tx) error {
		ib := tx.Bucket(indexBucket(col, idx))
		b := tx.Bucket([]byte(col))
		if ib == nil || b == nil {
			return fmt.Errorf("unknown index %s.%s", col, idx)
		}
		c := ib.Cursor()

		var k, v []byte
		if after != nil {
			k, v = c.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, v = c.Next()
			}
		} else {
			k, v = c.Seek(prefix)
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			doc := b.Get(v)
			if doc != nil {
				docs = append(docs, append([]byte(nil), doc...))
			}
			if len(docs) == limit {
				if nk, _ := c.Next(); nk != nil && bytes.HasPrefix(nk, prefix) {
					next = base64.RawURLEncoding.EncodeToString(k)
				}
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return docs, next, nil
}

// Scan returns one unordered page of the whole collection. Filter, when
// non-nil, is applied after the page is read, so a page may return fewer
// documents than limit while more remain. Page size is capped at ScanLimitCap.
func (s *Store) Scan(col string, limit int, cursor string, filter func([]byte) bool) ([][]byte, string, error) {
	if s == nil || s.db == nil {
		return nil, "", bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 || limit > ScanLimitCap {
		limit = ScanLimitCap
	}
	after, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	var (
		docs [][]byte
		next string
	)
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("unknown collection %s", col)
		}
		c := b.Cursor()

		var k, v []byte
		if after != nil {
			k, v = c.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, v = c.Next()
			}
		} else {
			k, v = c.First()
		}

		read := 0
		for ; k != nil; k, v = c.Next() {
			read++
			if filter == nil || filter(v) {
				docs = append(docs, append([]byte(nil), v...))
			}
			if read == limit {
				if nk, _ := c.Next(); nk != nil {
					next = base64.RawURLEncoding.EncodeToString(k)
				}
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return docs, next, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(col string) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(col))
		if b == nil {
			return fmt.Errorf("unknown collection %s", col)
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Ping verifies the store is usable.
func (s *Store) Ping() error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close closes the Bolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func indexBucket(col, idx string) []byte {
	return []byte(col + ".idx." + idx)
}

func indexKey(value, key string) []byte {
	out := make([]byte, 0, len(value)+1+len(key))
	out = append(out, value...)
	out = append(out, indexSep)
	out = append(out, key...)
	return out
}

func decodeCursor(cursor string) ([]byte, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	return raw, nil
}
