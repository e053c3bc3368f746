// Package main our entry point.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/johndosdos/huddle/internal"
	"github.com/johndosdos/huddle/internal/chat"
	"github.com/johndosdos/huddle/internal/config"
	"github.com/johndosdos/huddle/internal/handler"
	ratelimiter "github.com/johndosdos/huddle/internal/rate_limiter"
	ws "github.com/johndosdos/huddle/internal/websocket"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("Starting application...")

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("failed to create upload dir %s: %v", cfg.UploadDir, err)
	}

	// hub.Run is our central hub that is always listening for client related events.
	hub := ws.NewHub()
	go hub.Run(ctx)

	router := chat.NewRouter(hub)

	uploadLimiter := ratelimiter.NewIPRateLimiter(cfg.UploadRate.Requests, cfg.UploadRate.Window,
		ratelimiter.CleanupOpts{TTL: 10 * time.Minute, Interval: time.Minute})
	defer uploadLimiter.Cancel()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(internal.RequestLogger)

	r.Get("/health", handler.ServeHealth(hub.Len, router.Registry().Len))

	r.Route("/api", func(r chi.Router) {
		r.With(func(next http.Handler) http.Handler {
			return uploadLimiter.Middleware(next)
		}).Post("/upload", handler.ServeUpload(cfg.UploadDir, "/uploads", cfg.MaxUploadBytes))

		r.Get("/private/{a}/{b}", handler.ServePrivateHistory(router))
		r.Get("/rooms", handler.ServeRooms(router))
		r.Get("/rooms/{room}/history", handler.ServeRoomHistory(router))
		r.Get("/presence", handler.ServePresence(router))
	})

	r.Get("/ws", handler.ServeWs(hub, router, handler.WsOptions{
		OriginPatterns: cfg.AllowedOrigins,
		MessageRate:    cfg.MessageRate,
		TypingRate:     cfg.TypingRate,
		JoinRate:       cfg.JoinRate,
	}))

	r.Handle("/uploads/*", handler.ServeUploads("/uploads/", cfg.UploadDir))
	r.Handle("/*", handler.ServeRoot(cfg.PublicDir))

	// No read/write timeouts: they would also apply to hijacked websocket
	// connections.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		log.Printf("Server starting at 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutdown signal received; shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println(err)
	}

	// Wait for the hub to close every websocket connection.
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Printf("hub did not stop in time: %v", shutdownCtx.Err())
	}

	log.Println("Server stopped")
}
