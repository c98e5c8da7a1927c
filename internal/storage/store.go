package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

var validName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Store is a collection-oriented document store. Every mutation rewrites the
// whole collection through the Backend. Mutations of one collection are
// serialized; different collections never block each other.
type Store struct {
	backend Backend
	seeds   fs.FS
	clock   Clock
	logger  *slog.Logger

	seeding singleflight.Group
	locks   sync.Map // collection name -> *sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithSeeds sets the file system holding <collection>.json seed files.
// A nil fs disables seeding.
func WithSeeds(fsys fs.FS) Option {
	return func(s *Store) { s.seeds = fsys }
}

// WithClock replaces the wall clock used for ids and timestamps.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger used for seeding events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a Store over backend. Without WithSeeds the bundled seed set is
// used.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		seeds:   BundledSeeds(),
		clock:   realClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the backend of the given kind in dataDir, optionally wrapped in
// a read cache, and returns a Store over it.
func Open(kind, dataDir string, cacheTTL time.Duration, opts ...Option) (*Store, error) {
	b, err := NewBackend(kind, dataDir)
	if err != nil {
		return nil, err
	}
	return New(Cached(b, cacheTTL), opts...), nil
}

// Close releases the backend if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) lock(collection string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(collection, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func checkName(collection string) error {
	if !validName.MatchString(collection) {
		return fmt.Errorf("invalid collection name %q", collection)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// readRaw returns the stored body of collection. A collection that was never
// written is seeded from its seed file first; nil means neither exists.
func (s *Store) readRaw(collection string) ([]byte, error) {
	raw, err := s.backend.Read(collection)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, ErrNoCollection) {
		return nil, fmt.Errorf("reading %s: %w", collection, err)
	}

	v, err, _ := s.seeding.Do(collection, func() (any, error) {
		// A concurrent caller may have seeded it between our read and now.
		raw, err := s.backend.Read(collection)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, ErrNoCollection) {
			return nil, fmt.Errorf("reading %s: %w", collection, err)
		}
		seed, err := s.readSeed(collection)
		if err != nil || seed == nil {
			return nil, err
		}
		if _, err := decodeValue(seed); err != nil {
			return nil, fmt.Errorf("decoding seed %s: %w", collection, err)
		}
		if err := s.backend.Write(collection, seed); err != nil {
			return nil, fmt.Errorf("seeding %s: %w", collection, err)
		}
		s.logger.Info("seeded collection", "collection", collection)
		return seed, nil
	})
	if err != nil {
		return nil, err
	}
	raw, _ = v.([]byte)
	return raw, nil
}

func (s *Store) readSeed(collection string) ([]byte, error) {
	if s.seeds == nil {
		return nil, nil
	}
	seed, err := fs.ReadFile(s.seeds, collection+".json")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading seed %s: %w", collection, err)
	}
	return seed, nil
}

func (s *Store) load(collection string) ([]Record, error) {
	raw, err := s.readRaw(collection)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", collection, err)
	}
	return records, nil
}

func (s *Store) save(collection string, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", collection, err)
	}
	if err := s.backend.Write(collection, data); err != nil {
		return fmt.Errorf("writing %s: %w", collection, err)
	}
	return nil
}

func (s *Store) now() string {
	return formatTime(s.clock.Now())
}

// newID returns a base-36 millisecond timestamp followed by nine random hex
// characters.
func (s *Store) newID() string {
	u := uuid.New()
	return strconv.FormatInt(s.clock.Now().UnixMilli(), 36) + hex.EncodeToString(u[:5])[:9]
}

// GetAll returns every record of collection in insertion order. A collection
// that was never written is seeded on this first read if a seed exists.
func (s *Store) GetAll(collection string) (records []Record, err error) {
	defer func() { observe(collection, "get_all", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	return s.load(collection)
}

// GetByID returns the record whose id, compared as a string, equals id.
func (s *Store) GetByID(collection, id string) (rec Record, err error) {
	defer func() { observe(collection, "get", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	records, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], nil
	}
	return nil, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
}

// Query returns the records whose fields equal every entry of filter.
func (s *Store) Query(collection string, filter map[string]any) (out []Record, err error) {
	defer func() { observe(collection, "query", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	records, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	out = make([]Record, 0, len(records))
	for _, r := range records {
		if r.Matches(filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Create appends a record built from fields with a fresh id and timestamps.
// Any id, createdAt or updatedAt in fields is ignored.
func (s *Store) Create(collection string, fields map[string]any) (rec Record, err error) {
	defer func() { observe(collection, "create", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	mu := s.lock(collection)
	mu.Lock()
	defer mu.Unlock()

	records, err := s.load(collection)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec = Record{"id": s.newID()}
	for k, v := range fields {
		if !isStamp(k) {
			rec[k] = v
		}
	}
	rec["createdAt"] = now
	rec["updatedAt"] = now

	if err := s.save(collection, append(records, rec)); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Update shallow-merges fields into the record with the given id. The id and
// createdAt are kept and updatedAt is set to now.
func (s *Store) Update(collection, id string, fields map[string]any) (rec Record, err error) {
	defer func() { observe(collection, "update", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	mu := s.lock(collection)
	mu.Lock()
	defer mu.Unlock()

	records, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}

	rec = merge(records[i], fields)
	rec["updatedAt"] = s.now()
	records[i] = rec

	if err := s.save(collection, records); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(collection, id string) (err error) {
	defer func() { observe(collection, "delete", err) }()
	if err := checkName(collection); err != nil {
		return err
	}
	mu := s.lock(collection)
	mu.Lock()
	defer mu.Unlock()

	records, err := s.load(collection)
	if err != nil {
		return err
	}
	i := indexOf(records, id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	records = append(records[:i], records[i+1:]...)
	return s.save(collection, records)
}

// GetDocument returns a singleton collection's object, or an empty record if
// there is none.
func (s *Store) GetDocument(collection string) (doc Record, err error) {
	defer func() { observe(collection, "get_document", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	raw, err := s.readRaw(collection)
	if err != nil {
		return nil, err
	}
	doc, err = decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", collection, err)
	}
	return doc, nil
}

// PutDocument merges fields into a singleton collection's object. The first
// write assigns an id and createdAt; every write sets updatedAt.
func (s *Store) PutDocument(collection string, fields map[string]any) (doc Record, err error) {
	defer func() { observe(collection, "put_document", err) }()
	if err := checkName(collection); err != nil {
		return nil, err
	}
	mu := s.lock(collection)
	mu.Lock()
	defer mu.Unlock()

	raw, err := s.readRaw(collection)
	if err != nil {
		return nil, err
	}
	current, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", collection, err)
	}

	now := s.now()
	doc = merge(current, fields)
	if doc.ID() == "" {
		doc["id"] = s.newID()
	}
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = now
	}
	doc["updatedAt"] = now

	if err := s.save(collection, doc); err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

// Seed writes the seed file of collection to the backend. Without force an
// existing collection is left alone. It reports whether anything was written.
func (s *Store) Seed(collection string, force bool) (seeded bool, err error) {
	defer func() { observe(collection, "seed", err) }()
	if err := checkName(collection); err != nil {
		return false, err
	}
	mu := s.lock(collection)
	mu.Lock()
	defer mu.Unlock()

	if !force {
		_, err := s.backend.Read(collection)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, ErrNoCollection) {
			return false, fmt.Errorf("reading %s: %w", collection, err)
		}
	}
	seed, err := s.readSeed(collection)
	if err != nil {
		return false, err
	}
	if seed == nil {
		return false, fmt.Errorf("no seed for %s: %w", collection, ErrNotFound)
	}
	if _, err := decodeValue(seed); err != nil {
		return false, fmt.Errorf("decoding seed %s: %w", collection, err)
	}
	if err := s.backend.Write(collection, seed); err != nil {
		return false, fmt.Errorf("seeding %s: %w", collection, err)
	}
	s.logger.Info("seeded collection", "collection", collection, "force", force)
	return true, nil
}

// SeedNames lists the collections that have a seed file.
func (s *Store) SeedNames() ([]string, error) {
	if s.seeds == nil {
		return nil, nil
	}
	matches, err := fs.Glob(s.seeds, "*.json")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(m, ".json"))
	}
	return names, nil
}

// Collections lists the persisted collections.
func (s *Store) Collections() ([]string, error) {
	names, err := s.backend.List()
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return names, nil
}

func indexOf(records []Record, id string) int {
	for i, r := range records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

func isStamp(key string) bool {
	return key == "id" || key == "createdAt" || key == "updatedAt"
}

// merge returns a copy of base with fields laid over it. The stamp fields of
// base always win.
func merge(base Record, fields map[string]any) Record {
	out := base.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range fields {
		if !isStamp(k) {
			out[k] = v
		}
	}
	return out
}

// DB returns the SQL connection behind the store, or nil when the backend is
// not a database.
func (s *Store) DB() *sql.DB {
	b := s.backend
	if c, ok := b.(*cachedBackend); ok {
		b = c.Backend
	}
	if d, ok := b.(interface{ DB() *sql.DB }); ok {
		return d.DB()
	}
	return nil
}
