package server

import (
	"log/slog"
	"net/http"
	"strings"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// PublicPath is the URL prefix finished videos are served under.
	PublicPath string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		PublicPath:     "/uploads",
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	publicPath := "/" + strings.Trim(cfg.PublicPath, "/")
	if publicPath == "/" {
		publicPath = DefaultConfig().PublicPath
	}

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /upload", h.Upload)
	mux.HandleFunc("GET /runs/{token}", h.GetRun)
	mux.HandleFunc("GET "+publicPath+"/{name}", h.ServeOutput)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
