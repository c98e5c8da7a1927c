package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cinnamona/bakery/internal/catalog"
	"github.com/cinnamona/bakery/internal/storage"
)

// mountCollection registers list, get, create, update and delete routes for
// one collection. Reads are public only when the schema says so; create may
// be replaced by a public handler.
func mountCollection(r chi.Router, deps Deps, s catalog.Schema, gate func(http.Handler) http.Handler, create http.HandlerFunc) {
	base := "/" + s.Collection
	read := r
	if !s.PublicRead {
		read = r.With(gate)
	}
	read.Get(base, handleList(deps, s))
	read.Get(base+"/{id}", handleGet(deps, s))

	if create != nil {
		r.Post(base, create)
	} else {
		r.With(gate).Post(base, handleCreate(deps, s))
	}
	r.With(gate).Put(base+"/{id}", handleUpdate(deps, s))
	r.With(gate).Delete(base+"/{id}", handleDelete(deps, s))
}

func handleList(deps Deps, s catalog.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := s.Filter(r.URL.Query())
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}

		var records []storage.Record
		if len(filter) == 0 {
			records, err = deps.Store.GetAll(s.Collection)
		} else {
			records, err = deps.Store.Query(s.Collection, filter)
		}
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		writeData(w, http.StatusOK, withStringIDs(records))
	}
}

func handleGet(deps Deps, s catalog.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Store.GetByID(s.Collection, chi.URLParam(r, "id"))
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		writeData(w, http.StatusOK, withStringID(rec))
	}
}

func handleCreate(deps Deps, s catalog.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeObject(w, r)
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		fields, err := s.Shape(body, false)
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		rec, err := deps.Store.Create(s.Collection, fields)
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		writeMessage(w, http.StatusCreated, rec, s.Label+" created")
	}
}

func handleUpdate(deps Deps, s catalog.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeObject(w, r)
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		fields, err := s.Shape(body, true)
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		rec, err := deps.Store.Update(s.Collection, chi.URLParam(r, "id"), fields)
		if err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		writeMessage(w, http.StatusOK, withStringID(rec), s.Label+" updated")
	}
}

func handleDelete(deps Deps, s catalog.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Delete(s.Collection, chi.URLParam(r, "id")); err != nil {
			deps.fail(w, r, err, s.Label)
			return
		}
		writeMessage(w, http.StatusOK, nil, s.Label+" deleted")
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Store.GetDocument(catalog.Settings.Collection)
		if err != nil {
			deps.fail(w, r, err, catalog.Settings.Label)
			return
		}
		writeData(w, http.StatusOK, withStringID(doc))
	}
}

func handlePutSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeObject(w, r)
		if err != nil {
			deps.fail(w, r, err, catalog.Settings.Label)
			return
		}
		fields, err := catalog.Settings.Shape(body, true)
		if err != nil {
			deps.fail(w, r, err, catalog.Settings.Label)
			return
		}
		doc, err := deps.Store.PutDocument(catalog.Settings.Collection, fields)
		if err != nil {
			deps.fail(w, r, err, catalog.Settings.Label)
			return
		}
		writeMessage(w, http.StatusOK, withStringID(doc), "Settings updated")
	}
}
