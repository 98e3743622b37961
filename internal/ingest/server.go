// Package ingest exposes the mutation side over HTTP: extraction pipelines
// submit batches to POST /v1/batches, read the active schema from
// GET /v1/schema, and pull tenant snapshots from GET /v1/export.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/relay-ops/graphkb/internal/export"
	"github.com/relay-ops/graphkb/internal/graph"
	"github.com/relay-ops/graphkb/internal/identity"
	"github.com/relay-ops/graphkb/internal/mutation"
	"github.com/relay-ops/graphkb/internal/schema"
)

// Server is the ingest HTTP server.
type Server struct {
	mutations *mutation.Store
	reg       *schema.Registry
	store     graph.Store
}

// NewServer creates an ingest server over the given mutation store.
func NewServer(mutations *mutation.Store, reg *schema.Registry, store graph.Store) *Server {
	return &Server{mutations: mutations, reg: reg, store: store}
}

// Handler returns the route table, for embedding and tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/batches", s.handleApplyBatch)
	mux.HandleFunc("GET /v1/schema", s.handleSchema)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

// handleApplyBatch decodes a batch, applies it transactionally, and reports
// either the commit summary or the first failing operation.
func (s *Server) handleApplyBatch(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req batchRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), nil)
		batchesTotal.WithLabelValues("malformed").Inc()
		return
	}
	batch, err := req.toBatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		batchesTotal.WithLabelValues("malformed").Inc()
		return
	}

	result, err := s.mutations.Apply(r.Context(), req.Tenant, batch)
	if err != nil {
		status, index := mapApplyError(err)
		writeError(w, status, err.Error(), index)
		batchesTotal.WithLabelValues("failed").Inc()
		return
	}

	batchesTotal.WithLabelValues("applied").Inc()
	operationsTotal.Add(float64(len(batch.Operations)))
	writeJSON(w, http.StatusOK, result)
}

// handleSchema serves the active schema snapshot.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Describe())
}

// handleExport dumps one tenant's graph slice, as JSON or as a Mermaid
// diagram when format=mermaid.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "tenant query parameter is required", nil)
		return
	}

	snap, err := s.store.Export(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	e := export.FromSnapshot(snap)

	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, export.GenerateMermaid(e))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleHealthz reports storage reachability.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mapApplyError translates the mutation error taxonomy onto HTTP status
// codes, extracting the failing operation index when one is known.
func mapApplyError(err error) (int, *int) {
	var index *int
	var batchErr *graph.BatchError
	if errors.As(err, &batchErr) {
		index = &batchErr.Index
	}

	var idErr *identity.InvalidIdentityError
	switch {
	case errors.As(err, &idErr),
		errors.Is(err, graph.ErrUnknownLabel),
		errors.Is(err, graph.ErrSchemaViolation):
		return http.StatusBadRequest, index
	case errors.Is(err, graph.ErrDanglingReference):
		return http.StatusUnprocessableEntity, index
	case errors.Is(err, graph.ErrConflict):
		return http.StatusConflict, index
	case errors.Is(err, graph.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, index
	default:
		return http.StatusInternalServerError, index
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string, index *int) {
	writeJSON(w, status, errorResponse{Error: msg, Index: index})
}
