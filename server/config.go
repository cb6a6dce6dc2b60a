// Package server exposes the ingestion engine over HTTP: a small REST
// surface for session lifecycle and chunk submission, plus an SSE feed that
// relays engine notifications to consumers.
package server

// Config is the ingest server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string
}
