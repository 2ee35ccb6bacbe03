package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"field-agent/internal/config"

	"github.com/gin-gonic/gin"
)

func testApp(t *testing.T) (*app, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		App:    config.AppConfig{Env: "local", Port: 8080},
		Store:  config.StoreConfig{Driver: "memory"},
		Auth:   config.AuthConfig{JWTSecret: "secret"},
		Device: config.DeviceConfig{Capabilities: "location,notifications"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	a, err := buildApp(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.shutdown(ctx)
	})

	r := gin.New()
	registerRoutes(r, a)
	return a, r
}

func request(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	_, r := testApp(t)
	w := request(r, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz: %d %s", w.Code, w.Body.String())
	}
}

func TestRoutes_RequireToken(t *testing.T) {
	_, r := testApp(t)
	for _, p := range []string{"/v1/tracking/stop", "/v1/calls/accept", "/webhooks/push"} {
		if w := request(r, http.MethodPost, p, "", ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", p, w.Code)
		}
	}
}

func TestRoutes_RoleChecks(t *testing.T) {
	a, r := testApp(t)
	now := time.Now()
	worker, _ := a.auth.IssuePair(now, "u1", "org1", "worker")
	dispatcher, _ := a.auth.IssuePair(now, "d1", "org1", "dispatcher")

	if w := request(r, http.MethodGet, "/v1/admin/calls/history", worker.AccessToken, ""); w.Code != http.StatusForbidden {
		t.Fatalf("worker history: expected 403, got %d", w.Code)
	}
	if w := request(r, http.MethodGet, "/v1/admin/calls/history", dispatcher.AccessToken, ""); w.Code != http.StatusOK {
		t.Fatalf("dispatcher history: expected 200, got %d", w.Code)
	}
	if w := request(r, http.MethodPost, "/v1/admin/tokens", dispatcher.AccessToken, `{"worker_id":"u2"}`); w.Code != http.StatusForbidden {
		t.Fatalf("dispatcher tokens: expected 403, got %d", w.Code)
	}
	if w := request(r, http.MethodPost, "/v1/calls/accept", dispatcher.AccessToken, ""); w.Code != http.StatusForbidden {
		t.Fatalf("dispatcher calls: expected 403, got %d", w.Code)
	}
}

func TestRoutes_WorkerStartsOwnTracking(t *testing.T) {
	a, r := testApp(t)
	pair, _ := a.auth.IssuePair(time.Now(), "u1", "org1", "worker")

	var body bytes.Buffer
	body.WriteString(`{"workerId":"u1","organizationId":"org1","endpointBaseUrl":"http://127.0.0.1:1","displayName":"Asha"}`)
	w := request(r, http.MethodPost, "/v1/tracking/start", pair.AccessToken, body.String())
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	if !a.daemon.Running() {
		t.Fatalf("expected daemon running")
	}

	w = request(r, http.MethodGet, "/v1/tracking/status", pair.AccessToken, "")
	if !strings.Contains(w.Body.String(), `"isLocationTrackingActive":true`) {
		t.Fatalf("unexpected status %s", w.Body.String())
	}
}
