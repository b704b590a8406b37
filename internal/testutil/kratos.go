package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// KratosSession is a session the fake Kratos will report for a token.
type KratosSession struct {
	// IdentityID is reported verbatim, so tests can supply malformed ids.
	IdentityID string
	Active     bool

	// NoIdentity omits the identity object from the response.
	NoIdentity bool
}

// Kratos is an in-process stand-in for the Ory Kratos public API. It serves
// GET /sessions/whoami and GET /health/alive.
type Kratos struct {
	*httptest.Server

	mu       sync.Mutex
	sessions map[string]KratosSession
	status   int

	whoamiCalls atomic.Int64
}

// NewKratos starts a fake Kratos that is shut down when the test ends.
func NewKratos(t testing.TB) *Kratos {
	t.Helper()
	k := &Kratos{sessions: make(map[string]KratosSession)}

	r := chi.NewRouter()
	r.Get("/sessions/whoami", k.whoami)
	r.Get("/health/alive", func(w http.ResponseWriter, _ *http.Request) {
		writeKratosJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	k.Server = httptest.NewServer(r)
	t.Cleanup(k.Close)
	return k
}

// AddSession registers token. It returns the token for convenience.
func (k *Kratos) AddSession(token string, s KratosSession) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.sessions[token] = s
	return token
}

// AddActiveSession registers a fresh token for a new active identity and
// returns the token and the identity id.
func (k *Kratos) AddActiveSession() (token string, identityID uuid.UUID) {
	identityID = uuid.New()
	token = k.AddSession("ory_st_"+uuid.NewString(), KratosSession{
		IdentityID: identityID.String(),
		Active:     true,
	})
	return token, identityID
}

// FailWith makes every whoami call answer with status. 0 restores normal
// behaviour.
func (k *Kratos) FailWith(status int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.status = status
}

// WhoamiCalls returns how many whoami requests were served.
func (k *Kratos) WhoamiCalls() int64 {
	return k.whoamiCalls.Load()
}

func (k *Kratos) whoami(w http.ResponseWriter, r *http.Request) {
	k.whoamiCalls.Add(1)

	k.mu.Lock()
	status := k.status
	session, ok := k.sessions[r.Header.Get("X-Session-Token")]
	k.mu.Unlock()

	if status != 0 {
		writeKratosError(w, status, http.StatusText(status))
		return
	}
	if !ok {
		writeKratosError(w, http.StatusUnauthorized, "No valid session credentials found in the request.")
		return
	}

	body := map[string]any{
		"id":     uuid.NewString(),
		"active": session.Active,
	}
	if !session.NoIdentity {
		body["identity"] = map[string]any{
			"id":        session.IdentityID,
			"schema_id": "default",
			"state":     "active",
			"traits":    map[string]string{"email": "email@email.com"},
		}
	}
	writeKratosJSON(w, http.StatusOK, body)
}

func writeKratosError(w http.ResponseWriter, status int, reason string) {
	writeKratosJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"status":  http.StatusText(status),
			"message": reason,
		},
	})
}

func writeKratosJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck,errchkjson // Test server
}
