// Package docstore is a flat-file document database. Each collection is a
// directory and each document a JSON file named after its _id.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDField is the primary key assigned to every stored document.
const IDField = "_id"

// TempPrefix starts the name of every in-progress write. A file with this
// prefix that outlives its write was orphaned by a crash.
const TempPrefix = ".tmp-"

const (
	docExt   = ".json"
	dirPerm  = 0o755
	filePerm = 0o644
)

// Common docstore errors.
var (
	// ErrNoDocument is returned when a lookup matches nothing.
	ErrNoDocument = errors.New("document not found")
	// ErrCorrupt is returned when a document file cannot be decoded.
	ErrCorrupt = errors.New("corrupt document")
	// ErrInvalidName is returned for collection names that are not plain identifiers.
	ErrInvalidName = errors.New("invalid collection name")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database closed")
	// ErrDuplicate is returned when a unique write finds the value already taken.
	ErrDuplicate = errors.New("duplicate value")
)

var collectionNameRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Document is a flat JSON object.
type Document map[string]any

// ID returns the document's primary key, or "" if unset.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// String returns the string value of field, or "" if absent or not a string.
func (d Document) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// DB is a handle on a data directory. Collections are created on first use
// and cached for the lifetime of the handle.
type DB struct {
	dir         string
	logger      *slog.Logger
	mu          sync.Mutex
	collections map[string]*Collection
	closed      bool
}

// Open prepares dir for use, creating it if necessary.
func Open(dir string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("opening docstore: data directory is required")
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
	}

	logger.Info("opened document store", "dir", dir)
	return &DB{
		dir:         dir,
		logger:      logger,
		collections: make(map[string]*Collection),
	}, nil
}

// Dir returns the data directory.
func (db *DB) Dir() string {
	return db.dir
}

// Collection returns the named collection, creating its directory on first use.
func (db *DB) Collection(name string) (*Collection, error) {
	if !collectionNameRegex.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrClosed
	}
	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	dir := filepath.Join(db.dir, name)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	c := &Collection{name: name, dir: dir, logger: db.logger.With("collection", name)}
	db.collections[name] = c
	return c, nil
}

// Ping verifies that the data directory is writable by writing and removing
// a scratch file.
func (db *DB) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	closed := db.closed
	db.mu.Unlock()
	if closed {
		return ErrClosed
	}

	f, err := os.CreateTemp(db.dir, TempPrefix+"ping-*")
	if err != nil {
		return fmt.Errorf("writing scratch file: %w", err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("removing scratch file: %w", err)
	}
	return nil
}

// Close releases the handle. Files on disk are untouched.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	db.collections = nil
	return nil
}

// Collection is a directory of JSON documents. Writes are serialized; reads
// may run concurrently with each other.
type Collection struct {
	name   string
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Insert stores doc under a freshly assigned _id and returns the stored copy.
func (c *Collection) Insert(ctx context.Context, doc Document) (Document, error) {
	return c.insert(ctx, doc, "")
}

// InsertUnique is Insert that fails with ErrDuplicate when another document
// already holds doc's value for field. The check and the write share one
// lock, so concurrent callers cannot both succeed.
func (c *Collection) InsertUnique(ctx context.Context, field string, doc Document) (Document, error) {
	return c.insert(ctx, doc, field)
}

func (c *Collection) insert(ctx context.Context, doc Document, unique string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating document id: %w", err)
	}

	stored := doc.Clone()
	stored[IDField] = id.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if unique != "" {
		docs, err := c.all()
		if err != nil {
			return nil, err
		}
		if holder := holding(docs, unique, stored, nil); holder != "" {
			return nil, fmt.Errorf("%w: %s already used by %s", ErrDuplicate, unique, holder)
		}
	}

	if err := c.write(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	docs, err := c.Query().Fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Query starts a new query over the collection.
func (c *Collection) Query() *Query {
	return &Query{c: c}
}

// all loads every document. Callers must hold c.mu.
func (c *Collection) all() ([]Document, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("listing collection %s: %w", c.name, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, TempPrefix) || filepath.Ext(name) != docExt {
			continue
		}
		names = append(names, name)
	}
	// v7 ids sort in insertion order.
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		doc, err := c.read(filepath.Join(c.dir, name))
		if err != nil {
			if errors.Is(err, ErrNoDocument) {
				// Removed between ReadDir and open.
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// holding returns the _id of the first document outside skip whose value for
// field equals want's, or "" if there is none or want has no such field.
func holding(docs []Document, field string, want Document, skip map[string]bool) string {
	value, ok := want[field]
	if !ok {
		return ""
	}
	for _, doc := range docs {
		if skip[doc.ID()] {
			continue
		}
		if v, ok := doc[field]; ok && equal(v, value) {
			return doc.ID()
		}
	}
	return ""
}

func (c *Collection) read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s: not a JSON object", ErrCorrupt, filepath.Base(path))
	}
	return doc, nil
}

// write persists doc atomically. Callers must hold c.mu for writing.
func (c *Collection) write(doc Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("writing document: missing %s", IDField)
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(c.dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing document %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing document %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing document %s: %w", id, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions on %s: %w", id, err)
	}
	if err := os.Rename(tmpName, filepath.Join(c.dir, id+docExt)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("committing document %s: %w", id, err)
	}
	return nil
}

func (c *Collection) remove(id string) error {
	err := os.Remove(filepath.Join(c.dir, id+docExt))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}
