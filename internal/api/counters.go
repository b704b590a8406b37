package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/tally-core/internal/counter"
	"github.com/nerrad567/tally-core/internal/entity"
)

// CounterValue is the body of GET and PUT /counter/{key}. A nil Counter
// means the key has no value.
type CounterValue struct {
	Counter *uint32 `json:"counter"`
}

// IncrementRequest is the body of POST /counter/{key}/increment.
// A missing body or By defaults to 1.
type IncrementRequest struct {
	By *uint32 `json:"by"`
}

// CounterList is the body of GET /counters.
type CounterList struct {
	Counters []entity.Counter `json:"counters"`
}

// counterKey parses the {key} URL parameter, writing a 400 when it is not
// a UUID.
func counterKey(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	key, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		writeBadRequest(w, "counter key must be a UUID")
		return uuid.Nil, false
	}
	return key, true
}

// handleGetCounter returns the counter's value, or null if it was never set.
func (s *Server) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	key, ok := counterKey(w, r)
	if !ok {
		return
	}

	value, found, err := s.counters.Get(r.Context(), key)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var resp CounterValue
	if found {
		resp.Counter = &value
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePutCounter stores a counter value.
func (s *Server) handlePutCounter(w http.ResponseWriter, r *http.Request) {
	key, ok := counterKey(w, r)
	if !ok {
		return
	}

	var req CounterValue
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Counter == nil {
		writeBadRequest(w, "No value provided")
		return
	}

	if err := s.counters.Set(r.Context(), key, *req.Counter, counter.SourceAPI); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIncrementCounter adds to a counter, creating it if needed, and
// returns the new value.
func (s *Server) handleIncrementCounter(w http.ResponseWriter, r *http.Request) {
	key, ok := counterKey(w, r)
	if !ok {
		return
	}

	var req IncrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	by := uint32(1)
	if req.By != nil {
		by = *req.By
	}

	value, err := s.counters.Increment(r.Context(), key, by, counter.SourceAPI)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CounterValue{Counter: &value})
}

// handleDeleteCounter removes a counter.
func (s *Server) handleDeleteCounter(w http.ResponseWriter, r *http.Request) {
	key, ok := counterKey(w, r)
	if !ok {
		return
	}

	deleted, err := s.counters.Delete(r.Context(), key, counter.SourceAPI)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeNotFound(w, "counter not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListCounters returns every stored counter.
func (s *Server) handleListCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := s.counters.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if counters == nil {
		counters = []entity.Counter{}
	}
	writeJSON(w, http.StatusOK, CounterList{Counters: counters})
}
