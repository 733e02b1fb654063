// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nvarela/turnero/internal/api"
	"github.com/nvarela/turnero/internal/api/webhook"
	"github.com/nvarela/turnero/internal/config"
)

func newServer(cfg *config.Config) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	// Register routes
	registerRoutes(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", webhook.HandleHealth)
	mux.HandleFunc("/webhook", webhook.HandleIncomingMessage)
}
