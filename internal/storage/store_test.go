package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testSeeds() fstest.MapFS {
	return fstest.MapFS{
		"products.json": {Data: []byte(`[{"id":1,"name":"Classic","price":25,"category":"classic"},{"id":2,"name":"Pecan","price":35.5,"category":"premium"}]`)},
		"settings.json": {Data: []byte(`{"siteName":"Golden Sweet","deliveryFee":30}`)},
	}
}

func openTestStore(t *testing.T) (*Store, *FileBackend, *fakeClock) {
	t.Helper()
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	clock := newFakeClock()
	return New(b, WithSeeds(testSeeds()), WithClock(clock)), b, clock
}

func TestCreateThenGetByID(t *testing.T) {
	s, _, _ := openTestStore(t)

	created, err := s.Create("shops", map[string]any{"name": "Maarif", "hours": "Open 24/7"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID() == "" {
		t.Fatal("expected non-empty id")
	}
	if created["createdAt"] != "2025-03-14T09:26:53.000Z" {
		t.Errorf("createdAt = %v", created["createdAt"])
	}
	if created["createdAt"] != created["updatedAt"] {
		t.Errorf("createdAt %v != updatedAt %v", created["createdAt"], created["updatedAt"])
	}

	got, err := s.GetByID("shops", created.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got["name"] != "Maarif" || got["hours"] != "Open 24/7" {
		t.Errorf("unexpected record: %v", got)
	}
}

func TestCreate_IgnoresClientStamps(t *testing.T) {
	s, _, _ := openTestStore(t)

	created, err := s.Create("shops", map[string]any{"id": "mine", "createdAt": "yesterday", "name": "X"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID() == "mine" {
		t.Error("client supplied id was kept")
	}
	if created["createdAt"] == "yesterday" {
		t.Error("client supplied createdAt was kept")
	}
}

func TestCreate_UniqueIDs(t *testing.T) {
	s, _, _ := openTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rec, err := s.Create("faqs", map[string]any{"question": "q", "answer": "a"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[rec.ID()] {
			t.Fatalf("duplicate id %s", rec.ID())
		}
		seen[rec.ID()] = true
	}
}

func TestUpdate_MergesAndKeepsID(t *testing.T) {
	s, _, clock := openTestStore(t)

	created, err := s.Create("shops", map[string]any{"name": "Maarif", "phone": "0600"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(time.Minute)

	updated, err := s.Update("shops", created.ID(), map[string]any{"x": float64(1), "id": "other"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ID() != created.ID() {
		t.Errorf("id changed: %s -> %s", created.ID(), updated.ID())
	}
	if updated["name"] != "Maarif" || updated["phone"] != "0600" {
		t.Errorf("other fields lost: %v", updated)
	}
	if updated["createdAt"] != created["createdAt"] {
		t.Errorf("createdAt changed: %v -> %v", created["createdAt"], updated["createdAt"])
	}
	if updated["updatedAt"] == created["updatedAt"] {
		t.Error("updatedAt was not re-stamped")
	}

	got, err := s.GetByID("shops", created.ID())
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if f, _ := asFloat(got["x"]); f != 1 {
		t.Errorf("x = %v, want 1", got["x"])
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s, _, _ := openTestStore(t)

	_, err := s.Update("shops", "nope", map[string]any{"name": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_ThenNotFound(t *testing.T) {
	s, _, _ := openTestStore(t)

	created, err := s.Create("shops", map[string]any{"name": "Maarif"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete("shops", created.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.GetByID("shops", created.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID after delete: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete("shops", created.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: expected ErrNotFound, got %v", err)
	}
}

func TestGetAll_SeedsOnFirstRead(t *testing.T) {
	s, b, _ := openTestStore(t)

	if _, err := os.Stat(filepath.Join(b.Dir(), "products.json")); !os.IsNotExist(err) {
		t.Fatalf("products.json exists before first read: %v", err)
	}

	records, err := s.GetAll("products")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 seeded products, got %d", len(records))
	}

	data, err := os.ReadFile(filepath.Join(b.Dir(), "products.json"))
	if err != nil {
		t.Fatalf("seed was not persisted: %v", err)
	}
	persisted, err := decodeRecords(data)
	if err != nil {
		t.Fatalf("decoding persisted seed: %v", err)
	}
	if len(persisted) != 2 || persisted[1]["name"] != "Pecan" {
		t.Errorf("unexpected persisted seed: %v", persisted)
	}
}

func TestGetAll_SeedNotReappliedAfterDeletes(t *testing.T) {
	s, _, _ := openTestStore(t)

	records, err := s.GetAll("products")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	for _, r := range records {
		if err := s.Delete("products", r.ID()); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}

	records, err = s.GetAll("products")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty collection, got %d records", len(records))
	}
}

func TestGetAll_NoSeedReturnsEmptyWithoutWriting(t *testing.T) {
	s, b, _ := openTestStore(t)

	records, err := s.GetAll("contacts")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", records)
	}
	if _, err := os.Stat(filepath.Join(b.Dir(), "contacts.json")); !os.IsNotExist(err) {
		t.Errorf("contacts.json should not be written: %v", err)
	}
}

func TestGetAll_CorruptFile(t *testing.T) {
	s, b, _ := openTestStore(t)

	if err := os.WriteFile(filepath.Join(b.Dir(), "shops.json"), []byte("[{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetAll("shops"); err == nil {
		t.Error("expected error for corrupt collection file")
	}
}

func TestGetAll_InvalidName(t *testing.T) {
	s, _, _ := openTestStore(t)

	if _, err := s.GetAll("../etc/passwd"); err == nil {
		t.Error("expected error for invalid collection name")
	}
}

func TestGetByID_NumericIDMatchesString(t *testing.T) {
	s, _, _ := openTestStore(t)

	got, err := s.GetByID("products", "1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got["name"] != "Classic" {
		t.Errorf("name = %v, want Classic", got["name"])
	}
}

func TestQuery_Equality(t *testing.T) {
	s, _, _ := openTestStore(t)

	got, err := s.Query("products", map[string]any{"price": float64(35.5)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0]["name"] != "Pecan" {
		t.Errorf("price filter: %v", got)
	}

	got, err = s.Query("products", map[string]any{"category": "classic", "price": float64(30)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestQuery_ListField(t *testing.T) {
	s, _, _ := openTestStore(t)

	if _, err := s.Create("shops", map[string]any{"name": "A", "tags": []string{"x", "y"}}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Query("shops", map[string]any{"tags": []any{"x", "y"}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 match, got %d", len(got))
	}
}

func TestConcurrentCreates(t *testing.T) {
	s, _, _ := openTestStore(t)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create("contacts", map[string]any{"name": "n"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Create: %v", err)
	}

	all, err := s.GetAll("contacts")
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != n {
		t.Errorf("expected %d records, got %d", n, len(all))
	}
}

type countingBackend struct {
	*MemoryBackend
	mu     sync.Mutex
	writes map[string]int
}

func (c *countingBackend) Write(name string, data []byte) error {
	c.mu.Lock()
	c.writes[name]++
	c.mu.Unlock()
	return c.MemoryBackend.Write(name, data)
}

func TestConcurrentFirstReadsSeedOnce(t *testing.T) {
	b := &countingBackend{MemoryBackend: NewMemoryBackend(), writes: make(map[string]int)}
	s := New(b, WithSeeds(testSeeds()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := s.GetAll("products")
			if err != nil {
				t.Errorf("GetAll: %v", err)
				return
			}
			if len(records) != 2 {
				t.Errorf("expected 2 records, got %d", len(records))
			}
		}()
	}
	wg.Wait()

	if b.writes["products"] != 1 {
		t.Errorf("expected one seeding write, got %d", b.writes["products"])
	}
}

func TestDocument_SeedAndMerge(t *testing.T) {
	s, _, clock := openTestStore(t)

	doc, err := s.GetDocument("settings")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc["siteName"] != "Golden Sweet" {
		t.Errorf("siteName = %v", doc["siteName"])
	}

	clock.Advance(time.Second)
	doc, err = s.PutDocument("settings", map[string]any{"phone": "0611"})
	if err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if doc["siteName"] != "Golden Sweet" || doc["phone"] != "0611" {
		t.Errorf("merge failed: %v", doc)
	}
	if doc.ID() == "" || doc["createdAt"] == nil || doc["updatedAt"] != "2025-03-14T09:26:54.000Z" {
		t.Errorf("stamps missing: %v", doc)
	}
	firstID := doc.ID()

	doc, err = s.PutDocument("settings", map[string]any{"email": "a@b.ma"})
	if err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if doc.ID() != firstID {
		t.Errorf("id changed on second put: %s -> %s", firstID, doc.ID())
	}
}

func TestDocument_EmptyWithoutSeed(t *testing.T) {
	s := New(NewMemoryBackend(), WithSeeds(nil))

	doc, err := s.GetDocument("settings")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("expected empty document, got %v", doc)
	}
}

func TestDocument_ArrayFileReadsFirstElement(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Write("settings", []byte(`[{"siteName":"Old"},{"siteName":"Ignored"}]`)); err != nil {
		t.Fatal(err)
	}
	s := New(b)

	doc, err := s.GetDocument("settings")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc["siteName"] != "Old" {
		t.Errorf("siteName = %v, want Old", doc["siteName"])
	}
}

func TestSeed_ForceAndNoForce(t *testing.T) {
	s, _, _ := openTestStore(t)

	seeded, err := s.Seed("products", false)
	if err != nil || !seeded {
		t.Fatalf("first Seed = %v, %v", seeded, err)
	}
	if _, err := s.Create("products", map[string]any{"name": "New"}); err != nil {
		t.Fatal(err)
	}

	seeded, err = s.Seed("products", false)
	if err != nil || seeded {
		t.Fatalf("Seed without force over existing = %v, %v", seeded, err)
	}
	all, _ := s.GetAll("products")
	if len(all) != 3 {
		t.Errorf("expected 3 records after non-forced seed, got %d", len(all))
	}

	seeded, err = s.Seed("products", true)
	if err != nil || !seeded {
		t.Fatalf("forced Seed = %v, %v", seeded, err)
	}
	all, _ = s.GetAll("products")
	if len(all) != 2 {
		t.Errorf("expected 2 records after forced seed, got %d", len(all))
	}

	if _, err := s.Seed("contacts", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Seed without seed file: expected ErrNotFound, got %v", err)
	}
}

func TestSeedNamesAndCollections(t *testing.T) {
	s, _, _ := openTestStore(t)

	names, err := s.SeedNames()
	if err != nil {
		t.Fatalf("SeedNames: %v", err)
	}
	if len(names) != 2 || names[0] != "products" || names[1] != "settings" {
		t.Errorf("SeedNames = %v", names)
	}

	if _, err := s.Create("shops", map[string]any{"name": "A"}); err != nil {
		t.Fatal(err)
	}
	cols, err := s.Collections()
	if err != nil {
		t.Fatalf("Collections: %v", err)
	}
	if len(cols) != 1 || cols[0] != "shops" {
		t.Errorf("Collections = %v", cols)
	}
}

func TestBundledSeedsDecode(t *testing.T) {
	s := New(NewMemoryBackend())

	for _, name := range []string{"products", "shops", "faqs"} {
		records, err := s.GetAll(name)
		if err != nil {
			t.Fatalf("GetAll(%s): %v", name, err)
		}
		if len(records) == 0 {
			t.Errorf("bundled %s seed is empty", name)
		}
	}
	doc, err := s.GetDocument("settings")
	if err != nil {
		t.Fatalf("GetDocument(settings): %v", err)
	}
	if doc["siteName"] == nil {
		t.Error("bundled settings seed has no siteName")
	}
}
