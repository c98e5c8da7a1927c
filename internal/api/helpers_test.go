package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cinnamona/bakery/internal/auth"
	"github.com/cinnamona/bakery/internal/storage"
)

const (
	testAdminEmail    = "admin@goldensweet.ma"
	testAdminPassword = "s3cret-pass"
)

type testEnv struct {
	handler   http.Handler
	store     *storage.Store
	dataDir   string
	uploadDir string
	token     string
}

type envOption func(*Deps)

func withMaxUpload(n int64) envOption {
	return func(d *Deps) { d.MaxUploadBytes = n }
}

func testSeeds() fstest.MapFS {
	return fstest.MapFS{
		"products.json": {Data: []byte(`[
  {"id": 1, "name": "Classic", "price": 25, "category": "classic", "featured": true, "tags": ["Classic"]},
  {"id": 2, "name": "Pistachio", "price": 35, "category": "gluten-free", "featured": false, "tags": []}
]`)},
		"settings.json": {Data: []byte(`{"siteName": "Golden Sweet", "whatsapp": "212611111111", "currency": "MAD", "deliveryFee": 30, "freeDeliveryThreshold": 300}`)},
	}
}

// newTestEnv builds the full handler over a JSON file store in a temp dir.
// Pass seeds nil for empty collections.
func newTestEnv(t *testing.T, seeds fstest.MapFS, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	uploadDir := filepath.Join(dir, "images")

	b, err := storage.NewFileBackend(dataDir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	var storeOpts []storage.Option
	if seeds == nil {
		storeOpts = append(storeOpts, storage.WithSeeds(nil))
	} else {
		storeOpts = append(storeOpts, storage.WithSeeds(seeds))
	}
	store := storage.New(b, storeOpts...)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	issuer, err := auth.NewIssuer([]byte("test-secret-for-api"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := issuer.Issue(auth.User{Email: testAdminEmail, Role: auth.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	deps := Deps{
		Store:          store,
		Issuer:         issuer,
		Credentials:    auth.Credentials{Email: testAdminEmail, PasswordHash: hash},
		UploadDir:      uploadDir,
		WhatsAppNumber: "212600000000",
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:            func() time.Time { return time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC) },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &testEnv{
		handler:   NewHandler(deps),
		store:     store,
		dataDir:   dataDir,
		uploadDir: uploadDir,
		token:     token,
	}
}

func (e *testEnv) do(t *testing.T, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func decodeData[T any](t *testing.T, resp apiResponse) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		t.Fatalf("decoding data %s: %v", resp.Data, err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) apiResponse {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
	return decodeResponse(t, rec)
}
