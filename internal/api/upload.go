package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	defaultMaxUploadBytes = 5 << 20 // 5MB
	multipartOverhead     = 1 << 20
	uploadField           = "image"
	sniffLen              = 3072
)

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var (
	errNotImage = errors.New("only images are allowed")
	errTooLarge = errors.New("file too large")
)

type uploadResult struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int    `json:"size"`
}

// handleUpload accepts one image in the "image" multipart field. The file is
// checked and held in memory before anything is written to the upload dir.
func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := deps.MaxUploadBytes
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		defer r.Body.Close()

		mr, err := r.MultipartReader()
		if err != nil {
			httpError(w, http.StatusBadRequest, "No file uploaded")
			return
		}

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				httpError(w, http.StatusBadRequest, "No file uploaded")
				return
			}
			if err != nil {
				uploadFailed(w, err)
				return
			}
			if part.FormName() != uploadField || part.FileName() == "" {
				part.Close()
				continue
			}

			ext, data, err := readImage(part, maxBytes)
			part.Close()
			if err != nil {
				uploadFailed(w, err)
				return
			}

			name, err := saveUpload(deps.UploadDir, ext, data, deps.now().UnixMilli())
			if err != nil {
				deps.fail(w, r, err, "Upload")
				return
			}
			deps.Logger.Info("image uploaded", "filename", name, "size", len(data))
			writeMessage(w, http.StatusCreated, uploadResult{
				Filename: name,
				Path:     "/images/" + name,
				Size:     len(data),
			}, "File uploaded")
			return
		}
	}
}

func uploadFailed(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errNotImage):
		httpError(w, http.StatusBadRequest, "Only images are allowed")
	case errors.Is(err, errTooLarge), errors.As(err, &tooLarge):
		httpError(w, http.StatusBadRequest, "File too large")
	default:
		httpError(w, http.StatusBadRequest, "Invalid upload")
	}
}

// readImage validates the extension, the declared type and the sniffed type
// of part and returns its lowercased extension and content.
func readImage(part *multipart.Part, maxBytes int64) (string, []byte, error) {
	ext := strings.ToLower(filepath.Ext(part.FileName()))
	if !allowedExtensions[ext] {
		return "", nil, errNotImage
	}
	declared, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err != nil || !allowedTypes[declared] {
		return "", nil, errNotImage
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(part, maxBytes+1))
	if err != nil {
		return "", nil, err
	}
	if n > maxBytes {
		return "", nil, errTooLarge
	}

	head := buf.Bytes()
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if !allowedTypes[mimetype.Detect(head).String()] {
		return "", nil, errNotImage
	}
	return ext, buf.Bytes(), nil
}

// saveUpload writes data as <millis>-<9 random digits><ext> in dir via a temp
// file and rename.
func saveUpload(dir, ext string, data []byte, millis int64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}
	name := strconv.FormatInt(millis, 10) + "-" + fmt.Sprintf("%09d", rand.IntN(1_000_000_000)) + ext

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing upload: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("storing upload: %w", err)
	}
	return name, nil
}
