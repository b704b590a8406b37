// Package identity maps Ory Kratos sessions to local users.
//
// Kratos owns credentials and sessions. Tally only asks Kratos who a session
// token belongs to (GET /sessions/whoami) and keeps a local User per Kratos
// identity, created on first sight.
package identity
