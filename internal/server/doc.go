// Package server implements the connection gateway and HTTP surface for GeoChat.
//
// Participants are admitted over HTTP (POST /api/session/join) and then open
// a WebSocket on /ws, authenticate with their session token, and exchange
// JSON envelopes of the form {"type": ..., "data": ...}. Each connection is a
// Client whose pumps are run by the Hub; all room state lives in the
// session.Registry, which addresses clients through the session.Conn
// interface.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, the wire format, routing, and HTTP handlers.
package server
