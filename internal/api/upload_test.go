package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	} else if err := mw.WriteField("caption", "no file here"); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, body *bytes.Buffer, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUpload_PNG(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, "image", "Cake.PNG", "image/png", pngHeader)
	resp := expectStatus(t, env.upload(t, body, ct, env.token), http.StatusCreated)
	result := decodeData[uploadResult](t, resp)

	if !strings.HasSuffix(result.Filename, ".png") || !strings.HasPrefix(result.Filename, "1751630400000-") {
		t.Errorf("filename = %q", result.Filename)
	}
	if result.Path != "/images/"+result.Filename || result.Size != len(pngHeader) {
		t.Errorf("unexpected result: %+v", result)
	}
	stored, err := os.ReadFile(filepath.Join(env.uploadDir, result.Filename))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, pngHeader) {
		t.Error("stored bytes differ from upload")
	}
	if files := uploadedFiles(t, env.uploadDir); len(files) != 1 {
		t.Errorf("expected only the image in the upload dir, got %v", files)
	}

	// The stored image is served back with caching headers.
	rec := env.do(t, http.MethodGet, result.Path, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", result.Path, rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=43200" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func TestUpload_Rejected(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		max         int64
		err         string
	}{
		{"text file", "notes.txt", "text/plain", []byte("hello"), 0, "Only images are allowed"},
		{"declared type mismatch", "cake.png", "application/pdf", pngHeader, 0, "Only images are allowed"},
		{"content is not an image", "cake.png", "image/png", []byte("#!/bin/sh\necho pwned\n"), 0, "Only images are allowed"},
		{"too large", "big.png", "image/png", append(append([]byte{}, pngHeader...), make([]byte, 2048)...), 1024, "File too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []envOption
			if tt.max > 0 {
				opts = append(opts, withMaxUpload(tt.max))
			}
			env := newTestEnv(t, nil, opts...)

			body, ct := multipartBody(t, "image", tt.filename, tt.contentType, tt.data)
			resp := expectStatus(t, env.upload(t, body, ct, env.token), http.StatusBadRequest)
			if resp.Error != tt.err {
				t.Errorf("error = %q, want %q", resp.Error, tt.err)
			}
			if files := uploadedFiles(t, env.uploadDir); len(files) != 0 {
				t.Errorf("rejected upload left files behind: %v", files)
			}
		})
	}
}

func TestUpload_NoFile(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, "", "", "", nil)
	resp := expectStatus(t, env.upload(t, body, ct, env.token), http.StatusBadRequest)
	if resp.Error != "No file uploaded" {
		t.Errorf("error = %q", resp.Error)
	}

	resp = expectStatus(t, env.do(t, http.MethodPost, "/api/upload", `{"image":"x"}`, env.token), http.StatusBadRequest)
	if resp.Error != "No file uploaded" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestUpload_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, "image", "cake.png", "image/png", pngHeader)
	expectStatus(t, env.upload(t, body, ct, ""), http.StatusUnauthorized)
	if files := uploadedFiles(t, env.uploadDir); len(files) != 0 {
		t.Errorf("unauthenticated upload wrote files: %v", files)
	}
}
