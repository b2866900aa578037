package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"mindtrack/internal/config"
)

const shutdownTimeout = 5 * time.Second

// WithCORS wraps the handler with the browser origin policy from config.
func WithCORS(handler http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(handler)
}

// Start serves until ctx is cancelled and then shuts down gracefully.
func Start(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           WithCORS(handler, cfg.AllowedOrigins),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "err", err)
		}
	}()

	slog.Info("http server listening", "addr", ln.Addr().String())
	return srv.Serve(ln)
}
