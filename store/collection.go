// Package store implements the durable document collections backing the
// message and group history.
//
// A Collection is a typed, append-oriented document list persisted as a
// single JSON snapshot per entity kind. Every write rewrites the whole
// snapshot; there is no write-ahead log and no partial-write protection, so a
// crash mid-write can lose the collection. That trade-off is acceptable for a
// local offline cache and is kept visible here rather than papered over.
//
// Example:
//
//	messages, err := store.Open[Message](dataDir, "messages")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	messages.InsertOne(msg)
//	all := messages.Find(nil)
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// record wraps a stored document with the store-local identifier. The _id is
// distinct from any application-level id carried inside the document.
type record[T any] struct {
	ID  string `json:"_id"`
	Doc T      `json:"doc"`
}

// Collection is a persistent, insertion-ordered list of documents of one
// entity kind. Safe for concurrent use.
type Collection[T any] struct {
	name string
	path string

	mu      sync.Mutex
	records []record[T]
}

// Open loads the collection snapshot for name from dir, creating dir as
// needed. A missing snapshot yields an empty collection.
func Open[T any](dir, name string) (*Collection[T], error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	c := &Collection[T]{
		name: name,
		path: filepath.Join(dir, name+".json"),
	}

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	if err := json.Unmarshal(data, &c.records); err != nil {
		return nil, fmt.Errorf("open collection %s: corrupt snapshot: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Open",
		"collection": name,
		"documents":  len(c.records),
	}).Debug("Loaded collection snapshot")

	return c, nil
}

// Find returns every document matched by pred in insertion order. A nil pred
// matches everything.
func (c *Collection[T]) Find(pred func(T) bool) []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, len(c.records))
	for _, r := range c.records {
		if pred == nil || pred(r.Doc) {
			out = append(out, r.Doc)
		}
	}
	return out
}

// InsertOne appends doc, assigns its store-local id, and persists the whole
// snapshot. Returns the assigned id.
func (c *Collection[T]) InsertOne(doc T) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := record[T]{ID: uuid.NewString(), Doc: doc}
	c.records = append(c.records, r)

	if err := c.persistLocked(); err != nil {
		return "", err
	}
	return r.ID, nil
}

// UpdateOne applies patch to every document matched by pred and persists the
// snapshot. Despite the name it patches all matches; callers wanting
// single-document semantics pass a pred expected to match at most once.
// Returns the number of documents patched.
func (c *Collection[T]) UpdateOne(pred func(T) bool, patch func(*T)) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	patched := 0
	for i := range c.records {
		if pred == nil || pred(c.records[i].Doc) {
			patch(&c.records[i].Doc)
			patched++
		}
	}

	if patched == 0 {
		return 0, nil
	}
	if err := c.persistLocked(); err != nil {
		return patched, err
	}
	return patched, nil
}

// Len reports the number of stored documents.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// persistLocked rewrites the snapshot file. Caller holds c.mu. The write is
// a plain truncate-and-replace; durability across a crash mid-write is
// explicitly not provided.
func (c *Collection[T]) persistLocked() error {
	data, err := json.Marshal(c.records)
	if err != nil {
		return fmt.Errorf("persist collection %s: %w", c.name, err)
	}

	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "persist",
			"collection": c.name,
			"error":      err,
		}).Error("Snapshot write failed")
		return fmt.Errorf("persist collection %s: %w", c.name, err)
	}
	return nil
}
