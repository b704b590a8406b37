package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tally-core/internal/infrastructure/influxdb"
)

const (
	defaultHistoryRange = 24 * time.Hour
	maxHistoryRange     = 30 * 24 * time.Hour
)

// CounterHistory is the body of GET /counter/{key}/history.
type CounterHistory struct {
	Key     uuid.UUID                `json:"key"`
	Since   string                   `json:"since"`
	Samples []influxdb.CounterSample `json:"samples"`
}

// handleCounterHistory returns the values recorded in InfluxDB for a counter.
// The optional since parameter is a Go duration such as "90m" or "12h".
func (s *Server) handleCounterHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := counterKey(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "counter history not configured")
		return
	}

	since := defaultHistoryRange
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < time.Second || d > maxHistoryRange {
			writeBadRequest(w, "since must be a duration between 1s and 720h")
			return
		}
		since = d
	}

	samples, err := s.history.CounterHistory(r.Context(), key.String(), since)
	switch {
	case errors.Is(err, influxdb.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "counter history unavailable")
		return
	case err != nil:
		s.logger.Error("counter history query failed",
			"error", err,
			"key", key,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "counter history query failed")
		return
	}

	if samples == nil {
		samples = []influxdb.CounterSample{}
	}
	writeJSON(w, http.StatusOK, CounterHistory{Key: key, Since: since.String(), Samples: samples})
}
