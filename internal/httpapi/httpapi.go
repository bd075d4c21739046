// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package httpapi is the thin HTTP boundary in front of pkg/storage and
// pkg/catalogue: ranged downloads, handle collection (build) and search-query
// lowering; it has no upload-registration route. It contains no business
// logic of its own —
// every handler is a direct translation of an HTTP request into a call
// against the core packages and a status-code mapping of the result.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cs3org/mangastore/pkg/catalogue"
	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/log"
	"github.com/cs3org/mangastore/pkg/searchquery"
	"github.com/cs3org/mangastore/pkg/storage"
	"github.com/cs3org/mangastore/pkg/storage/backend"
	"github.com/cs3org/mangastore/pkg/storage/builder"
	"github.com/cs3org/mangastore/pkg/storage/export"
)

var logger = log.New("httpapi")

// Server wires the storage system and the catalogue registry into a chi
// router.
type Server struct {
	System   *storage.System
	Registry *catalogue.Registry
}

// New builds a Server with reg defaulting to catalogue.DefaultRegistry when nil.
func New(sys *storage.System, reg *catalogue.Registry) *Server {
	if reg == nil {
		reg = catalogue.DefaultRegistry()
	}
	return &Server{System: sys, Registry: reg}
}

// Routes mounts every handler onto r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/files/{id}", s.handleDownload)
	r.Post("/files/{id}/build/{kind}", s.handleBuild)
	r.Get("/search", s.handleSearch)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case isErr[errtypes.IsHandleNotFound](err), isErr[errtypes.IsNotFound](err):
		status = http.StatusNotFound
	case isErr[errtypes.IsInvalidInput](err):
		status = http.StatusBadRequest
	case isErr[errtypes.IsMissingExtension](err), isErr[errtypes.IsNoDefaultImageAvailable](err):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func isErr[T any](err error) bool {
	_, ok := err.(T)
	return ok
}

// handleDownload serves a registered file's bytes, honouring a single-range
// "Range" header per pkg/storage/export.ParseRange.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := storage.FileID(chi.URLParam(r, "id"))

	obj, err := s.System.TakeBytes(r.Context(), id, backend.GetOptions{})
	if err != nil {
		writeError(w, err)
		return
	}
	defer obj.Stream.Close()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", obj.ContentType)

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" || obj.ContentLength < 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, obj.Stream)
		return
	}

	ranges, err := export.ParseRange(rangeHeader, obj.ContentLength)
	if err != nil {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(obj.ContentLength, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	rng := ranges[0]

	if _, err := io.CopyN(io.Discard, obj.Stream, rng.Start); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(rng.Length, 10))
	w.Header().Set("Content-Range", contentRangeHeader(rng, obj.ContentLength))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.CopyN(w, obj.Stream, rng.Length)
}

func contentRangeHeader(rng export.HTTPRange, size int64) string {
	end := rng.Start + rng.Length - 1
	return "bytes " + strconv.FormatInt(rng.Start, 10) + "-" + strconv.FormatInt(end, 10) + "/" + strconv.FormatInt(size, 10)
}

// handleBuild takes a still-processing or finished handle and places it at
// its final key using one of the known builder kinds, named by the trailing
// path segment; the builder's sole id (a manga id, a user id, ...) comes
// from the "id" query parameter.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	id := storage.FileID(chi.URLParam(r, "id"))
	kind := chi.URLParam(r, "kind")
	ownerID := r.URL.Query().Get("id")

	var fb builder.FileBuilder
	var err error
	switch kind {
	case "cover":
		fb, err = builder.NewCoverFileBuilder(ownerID)
	case "user-cover":
		fb, err = builder.NewUserCoverFileBuilder(ownerID)
	case "user-banner":
		fb, err = builder.NewUserBannerBuilder(ownerID)
	default:
		writeError(w, errtypes.InvalidInput("unknown builder kind: "+kind))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	file, err := s.System.Take(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := fb.BuildKey(file.Ext)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Debugf(r.Context(), "built key %s for handle %s", key, id)
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}

// handleSearch lowers a "q" query parameter into a catalogue query-string
// fragment for inspection/debugging of the compiler's output.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	userID := r.Header.Get("X-User-Id")

	tree, err := searchquery.Parse(q)
	if err != nil {
		writeError(w, err)
		return
	}
	lowered, err := catalogue.Lower(tree, userID, s.Registry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"query": lowered})
}
