package server

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.Handle("GET /health", gzhttp.GzipHandler(http.HandlerFunc(s.handleHealth)))

	// Update discovery and status page.
	mux.Handle("GET /update.json", gzhttp.GzipHandler(http.HandlerFunc(s.handleUpdate)))
	mux.Handle("GET /{$}", gzhttp.GzipHandler(http.HandlerFunc(s.handleIndex)))

	// Artifact downloads are served as-is so Range and Content-Length stay intact.
	mux.HandleFunc("GET /apk/{filename...}", s.handleArtifact)

	// Publishing.
	mux.HandleFunc("POST /upload", s.handleUpload)

	return mux
}
