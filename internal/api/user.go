package api

import (
	"net/http"

	"github.com/nerrad567/tally-core/internal/identity"
)

// sessionTokenQueryParam carries the session token on WebSocket upgrades,
// where browsers cannot set custom headers.
const sessionTokenQueryParam = "session_token"

// sessionToken returns the request's Kratos session token from the
// X-Session-Token header, falling back to the query parameter.
func sessionToken(r *http.Request) string {
	if token := r.Header.Get(identity.SessionTokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get(sessionTokenQueryParam)
}

// handleGetUser returns the local user for the caller's session, creating
// it on first sight.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "identity provider not configured")
		return
	}

	user, err := s.users.ResolveUser(r.Context(), r.Header.Get(identity.SessionTokenHeader))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
