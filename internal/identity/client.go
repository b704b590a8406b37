package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/tally-core/internal/infrastructure/config"
)

const (
	// SessionTokenHeader carries the Kratos session token on API requests.
	SessionTokenHeader = "X-Session-Token"

	defaultTimeout = 5 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Session is the subset of a Kratos session Tally uses.
type Session struct {
	ID       string    `json:"id"`
	Active   bool      `json:"active"`
	Identity *Identity `json:"identity,omitempty"`
}

// Identity is the subset of a Kratos identity Tally uses.
type Identity struct {
	ID       string         `json:"id"`
	SchemaID string         `json:"schema_id"`
	State    string         `json:"state"`
	Traits   map[string]any `json:"traits"`
}

// kratosErrorBody is the generic Kratos error envelope.
type kratosErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// Client calls the Kratos public API.
type Client struct {
	publicURL *url.URL
	http      *http.Client
}

// NewClient creates a client for cfg.PublicURL.
func NewClient(cfg config.IdentityConfig) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.PublicURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing identity.public_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("identity.public_url must be http or https, got %q", cfg.PublicURL)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		publicURL: u,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// Whoami resolves token to its session. 401 and 403 responses are reported
// as ErrUnauthenticated; any other failure as *KratosError or a transport
// error.
func (c *Client) Whoami(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publicURL.JoinPath("sessions", "whoami").String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building whoami request: %w", err)
	}
	req.Header.Set(SessionTokenHeader, token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling kratos whoami: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		return nil, readKratosError(resp)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decoding kratos session: %w", err)
	}
	return &session, nil
}

// HealthCheck calls GET /health/alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publicURL.JoinPath("health", "alive").String(), nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kratos health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readKratosError(resp)
	}
	return nil
}

func readKratosError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Best-effort detail

	kerr := &KratosError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var parsed kratosErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		kerr.Message = parsed.Error.Message
	}
	return kerr
}
