package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

type stubAPI struct {
	broadcasts int
	renames    int
}

func (s *stubAPI) ChannelHealth() ChannelHealthInfo {
	return ChannelHealthInfo{Name: "whatsapp", Connected: true, State: "connected"}
}

func (s *stubAPI) ActiveLoops() (int, int) {
	return s.broadcasts, s.renames
}

func newTestServer(cfg Config) *Server {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return New(cfg, &stubAPI{broadcasts: 2, renames: 1}, logger)
}

func TestKeepaliveEndpoints(t *testing.T) {
	s := newTestServer(Config{AuthToken: "secret"})

	t.Run("root responds without auth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleRoot(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if rec.Body.String() != "Fight Bot online!" {
			t.Errorf("body = %q", rec.Body.String())
		}
	})

	t.Run("root path only", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleRoot(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("health responds without auth", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["status"] != "ok" {
			t.Errorf("status = %q", body["status"])
		}
		if body["message"] != "Fight Bot running." {
			t.Errorf("message = %q", body["message"])
		}
	})
}

func TestStatusEndpoint(t *testing.T) {
	t.Run("reports loops and channel health", func(t *testing.T) {
		s := newTestServer(Config{})
		rec := httptest.NewRecorder()
		s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		var body struct {
			Channel          ChannelHealthInfo `json:"channel"`
			ActiveBroadcasts int               `json:"active_broadcasts"`
			ActiveRenames    int               `json:"active_renames"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !body.Channel.Connected || body.Channel.Name != "whatsapp" {
			t.Errorf("channel = %+v", body.Channel)
		}
		if body.ActiveBroadcasts != 2 || body.ActiveRenames != 1 {
			t.Errorf("loops = (%d, %d)", body.ActiveBroadcasts, body.ActiveRenames)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	protected := func(s *Server) http.HandlerFunc {
		return s.authMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("no token configured leaves access open", func(t *testing.T) {
		s := newTestServer(Config{})
		rec := httptest.NewRecorder()
		protected(s)(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		s := newTestServer(Config{AuthToken: "secret"})
		rec := httptest.NewRecorder()
		protected(s)(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("bearer header is accepted", func(t *testing.T) {
		s := newTestServer(Config{AuthToken: "secret"})
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		protected(s)(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("query token is accepted", func(t *testing.T) {
		s := newTestServer(Config{AuthToken: "secret"})
		rec := httptest.NewRecorder()
		protected(s)(rec, httptest.NewRequest(http.MethodGet, "/status?token=secret", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		s := newTestServer(Config{AuthToken: "secret"})
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		protected(s)(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestQREndpoint(t *testing.T) {
	t.Run("serves the QR image when present", func(t *testing.T) {
		dir := t.TempDir()
		path := dir + "/qr.png"
		if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
			t.Fatal(err)
		}

		s := newTestServer(Config{QRImagePath: path})
		rec := httptest.NewRecorder()
		s.handleQR(rec, httptest.NewRequest(http.MethodGet, "/qr", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("content type = %q", ct)
		}
	})

	t.Run("missing image is a 404", func(t *testing.T) {
		s := newTestServer(Config{QRImagePath: "/nonexistent/qr.png"})
		rec := httptest.NewRecorder()
		s.handleQR(rec, httptest.NewRequest(http.MethodGet, "/qr", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("unconfigured path is a 404", func(t *testing.T) {
		s := newTestServer(Config{})
		rec := httptest.NewRecorder()
		s.handleQR(rec, httptest.NewRequest(http.MethodGet, "/qr", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})
}
