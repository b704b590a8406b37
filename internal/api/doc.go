// Package api implements the HTTP REST API and WebSocket server for Tally Core.
//
// This package provides:
//   - REST endpoints to read, set, increment and delete counters
//   - The user endpoint, which resolves a Kratos session to a local user
//   - A WebSocket hub that streams counter.updated events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Health and metrics endpoints exposing the database actor's state
//
// # Errors
//
// Handlers never expose engine text. Database engine failures, closed
// connections and unexpected errors become a 500 with the message
// "internal server error"; the cause is logged with the request ID.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and Kratos are optional. Without Kratos the user endpoint
// answers 503 and the WebSocket accepts anonymous clients.
package api
