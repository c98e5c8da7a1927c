package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func testBackendContract(t *testing.T, b Backend) {
	t.Helper()

	if _, err := b.Read("products"); !errors.Is(err, ErrNoCollection) {
		t.Fatalf("Read of missing collection: expected ErrNoCollection, got %v", err)
	}
	if err := b.Write("products", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b.Write("products", []byte(`[{"id":"b"}]`)); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got, err := b.Read("products")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != `[{"id":"b"}]` {
		t.Errorf("Read = %s", got)
	}
	if err := b.Write("faqs", []byte(`[]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	names, err := b.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "faqs" || names[1] != "products" {
		t.Errorf("List = %v", names)
	}
}

func TestFileBackend_Contract(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testBackendContract(t, b)
}

func TestMemoryBackend_Contract(t *testing.T) {
	testBackendContract(t, NewMemoryBackend())
}

func TestSQLiteBackend_Contract(t *testing.T) {
	testBackendContract(t, openTestSQLite(t))
}

func TestFileBackend_ListSkipsTempAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{".products-123.tmp", "notes.txt", "shops.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	names, err := b.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "shops" {
		t.Errorf("List = %v, want [shops]", names)
	}
}

func TestFileBackend_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Write("shops", []byte("[]")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "shops.json" {
		for _, e := range entries {
			t.Logf("entry: %s", e.Name())
		}
		t.Error("expected only shops.json in data dir")
	}
}

// TestMigrationsIdempotent opens the same database twice and verifies the
// migration is not re-applied.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	b1, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("first OpenSQLite failed: %v", err)
	}
	v1, err := b1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if err := b1.Write("shops", []byte("[]")); err != nil {
		t.Fatal(err)
	}
	b1.Close()

	b2, err := OpenSQLite(dir)
	if err != nil {
		t.Fatalf("second OpenSQLite failed: %v", err)
	}
	defer b2.Close()
	v2, err := b2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != 1 || v1[0] != 1 {
		t.Errorf("applied migrations = %v, want [1]", v1)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
	if _, err := b2.Read("shops"); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}
}

func TestCached_ServesAndInvalidates(t *testing.T) {
	mem := NewMemoryBackend()
	b := Cached(mem, time.Minute)

	if err := b.Write("shops", []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.Read("shops"); string(got) != `[1]` {
		t.Fatalf("Read = %s", got)
	}

	// Bypass the cache: the cached body is still served.
	if err := mem.Write("shops", []byte(`[2]`)); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.Read("shops"); string(got) != `[1]` {
		t.Errorf("expected cached body, got %s", got)
	}

	// Writing through the cache evicts it.
	if err := b.Write("shops", []byte(`[3]`)); err != nil {
		t.Fatal(err)
	}
	if got, _ := b.Read("shops"); string(got) != `[3]` {
		t.Errorf("expected fresh body, got %s", got)
	}
}

// pausingBackend holds the next Read, once armed, after it has read the body
// and before it returns.
type pausingBackend struct {
	Backend
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingBackend) Read(name string) ([]byte, error) {
	data, err := p.Backend.Read(name)
	if p.armed.CompareAndSwap(true, false) {
		close(p.paused)
		<-p.release
	}
	return data, err
}

func TestCached_SlowReadDoesNotUndoWrite(t *testing.T) {
	slow := &pausingBackend{
		Backend: NewMemoryBackend(),
		paused:  make(chan struct{}),
		release: make(chan struct{}),
	}
	store := New(Cached(slow, time.Minute), WithSeeds(nil))

	if _, err := store.Create("products", map[string]any{"name": "A"}); err != nil {
		t.Fatal(err)
	}

	slow.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := store.GetAll("products")
		done <- err
	}()
	<-slow.paused

	if _, err := store.Create("products", map[string]any{"name": "B"}); err != nil {
		t.Fatal(err)
	}
	close(slow.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if _, err := store.Create("products", map[string]any{"name": "C"}); err != nil {
		t.Fatal(err)
	}

	raw, err := slow.Backend.Read("products")
	if err != nil {
		t.Fatal(err)
	}
	records, err := decodeRecords(raw)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range records {
		names = append(names, r["name"].(string))
	}
	if len(names) != 3 || names[0] != "A" || names[1] != "B" || names[2] != "C" {
		t.Errorf("persisted names = %v, want [A B C]", names)
	}
}

func TestCached_ZeroTTLDisables(t *testing.T) {
	mem := NewMemoryBackend()
	if Cached(mem, 0) != Backend(mem) {
		t.Error("expected the backend itself for zero ttl")
	}
}

func TestNewBackend(t *testing.T) {
	for _, kind := range []string{"", BackendJSON, BackendMemory} {
		if _, err := NewBackend(kind, t.TempDir()); err != nil {
			t.Errorf("NewBackend(%q): %v", kind, err)
		}
	}
	if _, err := NewBackend("postgres", t.TempDir()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpen_SQLiteStore(t *testing.T) {
	s, err := Open(BackendSQLite, t.TempDir(), time.Minute)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	created, err := s.Create("products", map[string]any{"name": "Roll", "price": 25})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.GetByID("products", created.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got["name"] != "Roll" {
		t.Errorf("name = %v", got["name"])
	}
}
