// Package httpserver builds the process-wide HTTP server.
package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. No WriteTimeout: settlement requests stay open
// while the backend waits for receipt confirmation, so the per-request
// deadline comes from the router's timeout middleware instead.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
