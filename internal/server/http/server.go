// Package http exposes the transcription service over a huma HTTP API.
package http

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
)

// NewAPI creates the huma API on mux.
func NewAPI(mux *http.ServeMux, version string) huma.API {
	return humago.New(mux, huma.DefaultConfig("Flamingo AVSR", version))
}

// NewServer creates an HTTP server for handler with request bodies capped at
// maxBodyBytes.
func NewServer(addr string, handler http.Handler, maxBodyBytes int64) *http.Server {
	if maxBodyBytes > 0 {
		handler = http.MaxBytesHandler(handler, maxBodyBytes)
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
