package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/pinchvol/internal/app"
	"github.com/ayusman/pinchvol/internal/calibration"
)

type fakeController struct {
	mu      sync.Mutex
	enabled bool
	calls   int
}

func (c *fakeController) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	c.calls++
}

func (c *fakeController) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func TestServer_Health(t *testing.T) {
	s := New(Config{Monitor: app.NewMonitor()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
		if response["state"] != "initializing" {
			t.Errorf("expected state 'initializing', got %v", response["state"])
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_Status(t *testing.T) {
	monitor := app.NewMonitor()
	monitor.Update(func(s *app.Status) {
		s.State = app.StateRunning
		s.Level = -12.5
		s.HasLevel = true
		s.Range = calibration.Range{Min: -65.25, Max: 0}
		s.Stats.Frames = 7
	})
	s := New(Config{Monitor: monitor})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var status app.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.State != app.StateRunning {
		t.Errorf("state = %v, want running", status.State)
	}
	if !status.HasLevel || status.Level != -12.5 {
		t.Errorf("level = %v (has %v), want -12.5", status.Level, status.HasLevel)
	}
	if status.Range.Min != -65.25 {
		t.Errorf("range min = %v, want -65.25", status.Range.Min)
	}
	if status.Stats.Frames != 7 {
		t.Errorf("frames = %d, want 7", status.Stats.Frames)
	}
}

func TestServer_Control(t *testing.T) {
	controller := &fakeController{enabled: true}
	s := New(Config{Controller: controller})

	t.Run("reports state", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/control", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"enabled":true`) {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})

	t.Run("pauses", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := bytes.NewBufferString(`{"enabled":false}`)
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/control", body))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if controller.Enabled() {
			t.Error("expected controller to be paused")
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		for _, body := range []string{`not json`, `{}`} {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/control", bytes.NewBufferString(body)))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("body %q: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
			}
		}
		if controller.calls != 1 {
			t.Errorf("expected exactly one SetEnabled call, got %d", controller.calls)
		}
	})

	t.Run("rejects other methods", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/control", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestServer_Levels(t *testing.T) {
	monitor := app.NewMonitor()
	ts := httptest.NewServer(New(Config{Monitor: monitor}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/levels"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status app.Status
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if status.State != app.StateInitializing || status.HasLevel {
		t.Errorf("unexpected initial snapshot %+v", status)
	}

	monitor.Update(func(s *app.Status) {
		s.State = app.StateRunning
		s.Level = -30
		s.HasLevel = true
	})
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if status.Level != -30 || !status.HasLevel {
		t.Errorf("level = %v (has %v), want -30", status.Level, status.HasLevel)
	}

	monitor.Update(func(s *app.Status) {
		s.State = app.StateTerminated
	})
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read final snapshot: %v", err)
	}
	if status.State != app.StateTerminated {
		t.Errorf("state = %v, want terminated", status.State)
	}

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("expected normal closure after termination, got %v", err)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/status", "/api/control", "/api/sessions"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()

	testContent := "<html><body>Hello, World!</body></html>"
	if err := os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if rec.Body.String() != testContent {
			t.Errorf("expected body %q, got %q", testContent, rec.Body.String())
		}
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nonexistent.html", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestServer_StartShutdown(t *testing.T) {
	s := New(Config{Monitor: app.NewMonitor()})

	addr, err := s.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/health"); err == nil {
		t.Error("expected server to be gone after Shutdown")
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8080", true},
		{"localhost:8080", true},
		{"[::1]:8080", true},
		{"0.0.0.0:8080", false},
		{"[::]:8080", false},
		{":8080", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestServer_LevelsBurstEndsWithTermination(t *testing.T) {
	monitor := app.NewMonitor()
	ts := httptest.NewServer(New(Config{Monitor: monitor}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/levels"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status app.Status
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}

	for i := 0; i < 500; i++ {
		monitor.Update(func(s *app.Status) {
			s.State = app.StateRunning
			s.Stats.Iterations++
		})
	}
	monitor.Update(func(s *app.Status) { s.State = app.StateTerminated })

	var last app.Status
	for {
		err := conn.ReadJSON(&status)
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
				t.Fatalf("expected normal closure, got %v", err)
			}
			break
		}
		last = status
	}
	if last.State != app.StateTerminated || last.Stats.Iterations != 500 {
		t.Errorf("last snapshot = %+v, want terminated after 500 iterations", last)
	}
}

func TestServer_LevelsAfterTermination(t *testing.T) {
	monitor := app.NewMonitor()
	monitor.Update(func(s *app.Status) { s.State = app.StateTerminated })
	ts := httptest.NewServer(New(Config{Monitor: monitor}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/levels"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status app.Status
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if status.State != app.StateTerminated {
		t.Errorf("state = %v, want terminated", status.State)
	}

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseNormalClosure {
		t.Errorf("expected normal closure, got %v", err)
	}
}
