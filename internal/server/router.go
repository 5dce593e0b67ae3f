// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/emojistore/internal/server/handlers"
	"github.com/maruel/emojistore/internal/server/ipgeo"
	"github.com/maruel/emojistore/internal/server/ratelimit"
	"github.com/maruel/emojistore/internal/storage"
	"github.com/maruel/emojistore/internal/storage/git"
)

// Config holds the optional collaborators of the router. The zero value
// serves without limits or history.
type Config struct {
	ServerConfig *storage.ServerConfig
	Version      string
	History      *git.Repo
	IPGeo        *ipgeo.Checker
	Limits       *ratelimit.Config
}

// NewRouter creates and configures the HTTP router.
func NewRouter(store *storage.DocumentStore, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	mux := &http.ServeMux{}
	hh := handlers.NewHealthHandler(cfg.Version)
	eh := handlers.NewEmojiHandler(store, cfg.History)
	sh := handlers.NewSchemaHandler()

	mux.Handle("GET /health", Wrap(hh.Health, cfg))

	mux.Handle("POST /emojis", Wrap(eh.Create, cfg))
	mux.Handle("GET /emojis", Wrap(eh.List, cfg))
	mux.Handle("GET /emojis/history", Wrap(eh.History, cfg))
	mux.Handle("GET /emojis/history/{hash}", Wrap(eh.Snapshot, cfg))
	mux.Handle("PATCH /emojis/{id}", Wrap(eh.Update, cfg))
	mux.Handle("DELETE /emojis/{id}", Wrap(eh.Delete, cfg))

	mux.Handle("GET /schema", Wrap(sh.Schema, cfg))

	return withRequestLog(cfg.IPGeo, withCORS(mux))
}
