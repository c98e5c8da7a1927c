package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/cinnamona/bakery/internal/auth"
	"github.com/cinnamona/bakery/internal/catalog"
	"github.com/cinnamona/bakery/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

var errBadBody = errors.New("invalid request body")

// envelope is the shape of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, code int, data any, msg string) {
	writeJSON(w, code, envelope{Success: true, Data: data, Message: msg})
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, envelope{Success: false, Error: fmt.Sprintf(format, args...)})
}

// withStringID returns rec with its id rendered as a string. Seed files may
// carry numeric ids.
func withStringID(rec storage.Record) storage.Record {
	v, ok := rec["id"]
	if !ok {
		return rec
	}
	if _, isString := v.(string); isString {
		return rec
	}
	rec = rec.Clone()
	rec["id"] = rec.ID()
	return rec
}

func withStringIDs(records []storage.Record) []storage.Record {
	for i := range records {
		records[i] = withStringID(records[i])
	}
	return records
}

// fail maps err onto a response. Errors that are not the client's fault are
// logged and reported with a generic message.
func (d Deps) fail(w http.ResponseWriter, r *http.Request, err error, label string) {
	var verr *catalog.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		httpError(w, http.StatusBadRequest, "%s", verr.Error())
	case errors.As(err, &tooLarge):
		httpError(w, http.StatusRequestEntityTooLarge, "Request body too large")
	case errors.Is(err, errBadBody):
		httpError(w, http.StatusBadRequest, "Invalid request body")
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "%s not found", label)
	case errors.Is(err, auth.ErrInvalidCredentials):
		httpError(w, http.StatusUnauthorized, "Invalid credentials")
	default:
		d.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		httpError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeObject reads a JSON object body. Numbers are kept as json.Number.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	if body == nil {
		return nil, errBadBody
	}
	return body, nil
}

// decodeInto reads a JSON body into dst.
func decodeInto(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
