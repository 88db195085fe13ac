// Package api provides the HTTP surface of Foyer Core: the REST API for
// visits, users, and devices, and the WebSocket session gateway that
// feeds the realtime registry.
//
// The REST routes live under /api/v1 and are protected by JWT bearer
// authentication except for /health and /auth/login. The WebSocket
// endpoint performs its own registration handshake; see gateway.go.
package api
