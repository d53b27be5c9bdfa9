// Package web implements the keepalive HTTP server. Hosting platforms
// ping / and /health to keep the process alive; /status exposes channel
// health and loop counts behind an optional bearer token.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// StatusAPI defines the interface the server uses to read bot state.
// This avoids a direct dependency on the bot package.
type StatusAPI interface {
	// ChannelHealth returns the transport's health snapshot.
	ChannelHealth() ChannelHealthInfo

	// ActiveLoops returns how many broadcast and rename loops run now.
	ActiveLoops() (broadcasts, renames int)
}

// ChannelHealthInfo contains channel health for the status endpoint.
type ChannelHealthInfo struct {
	Name       string    `json:"name"`
	Connected  bool      `json:"connected"`
	State      string    `json:"state"`
	LastMsgAt  time.Time `json:"last_msg_at"`
	ErrorCount int       `json:"error_count"`
}

// Config holds web server configuration.
type Config struct {
	// Enabled turns the server on/off.
	Enabled bool `yaml:"enabled"`

	// Listen is the listen address (default: ":10000").
	Listen string `yaml:"listen"`

	// AuthToken is the bearer token protecting /status (empty = no auth).
	AuthToken string `yaml:"auth_token"`

	// QRImagePath, when set, is served at /qr while pairing is pending.
	QRImagePath string `yaml:"qr_image_path"`
}

// Server is the keepalive/status HTTP server.
type Server struct {
	cfg    Config
	api    StatusAPI
	logger *slog.Logger
	server *http.Server
}

// New creates a new web server.
func New(cfg Config, api StatusAPI, logger *slog.Logger) *Server {
	if cfg.Listen == "" {
		cfg.Listen = ":10000"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		api:    api,
		logger: logger.With("component", "web"),
	}
}

// Start begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Keepalive routes stay unauthenticated so platform pingers work.
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/qr", s.authMiddleware(s.handleQR))

	s.server = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("web server starting", "address", s.cfg.Listen)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("web server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
		s.logger.Info("web server stopped")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Fight Bot online!"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"message": "Fight Bot running.",
	})
}

// handleStatus reports channel health and the number of running loops.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	health := s.api.ChannelHealth()
	broadcasts, renames := s.api.ActiveLoops()

	s.writeJSON(w, map[string]any{
		"channel":           health,
		"active_broadcasts": broadcasts,
		"active_renames":    renames,
	})
}

// handleQR serves the pending pairing QR code image, if one exists.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if s.cfg.QRImagePath == "" {
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(s.cfg.QRImagePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// authMiddleware validates the bearer token if configured.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next(w, r)
			return
		}

		token := r.Header.Get("Authorization")
		token = strings.TrimPrefix(token, "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("status encode error", "error", err)
	}
}
