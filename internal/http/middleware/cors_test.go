package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name      string
		allowed   []string
		origin    string
		wantAllow string
	}{
		{name: "listed origin", allowed: []string{"https://ui.example.com/"}, origin: "https://ui.example.com", wantAllow: "https://ui.example.com"},
		{name: "unknown origin", allowed: []string{"https://ui.example.com"}, origin: "https://unknown.example", wantAllow: ""},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://random.example", wantAllow: "https://random.example"},
		{name: "no origin", allowed: []string{"*"}, origin: "", wantAllow: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(okHandler(&called)).ServeHTTP(rec, req)

			if !called {
				t.Fatalf("expected handler to be called")
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Fatalf("expected allow origin %q, got %q", tt.wantAllow, got)
			}
			if tt.wantAllow != "" && rec.Header().Get("Access-Control-Allow-Methods") == "" {
				t.Fatalf("expected allow methods header")
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	mw := CORS([]string{"https://ui.example.com"})
	for origin, want := range map[string]int{
		"https://ui.example.com":  http.StatusNoContent,
		"https://unknown.example": http.StatusForbidden,
	} {
		called := false
		req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()

		mw(okHandler(&called)).ServeHTTP(rec, req)

		if called {
			t.Fatalf("%s: expected handler to not be called on preflight", origin)
		}
		if rec.Code != want {
			t.Fatalf("%s: expected status %d, got %d", origin, want, rec.Code)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatalf("expected burst of two to pass")
	}
	if rl.Allow("10.0.0.1") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Fatalf("expected other clients to have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("10.0.0.1") {
		t.Fatalf("expected a token after one second")
	}

	now = now.Add(staleAfter + time.Minute)
	if remaining := rl.Sweep(); remaining != 0 {
		t.Fatalf("expected idle clients to be swept, %d remain", remaining)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(NewRateLimiter(1, 1))(okHandler(nil))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 50; i++ {
		if !unlimited.Allow("x") {
			t.Fatalf("expected non-positive rate to disable limiting")
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter("info", &buf)
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-1" {
		t.Fatalf("expected request id header, got %q", got)
	}
	out := buf.String()
	for _, want := range []string{`"path":"/sessions"`, `"status":201`, `"request_id":"req-1"`, `"bytes":2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %s: %s", want, out)
		}
	}

	buf.Reset()
	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), health)
	if buf.Len() != 0 {
		t.Fatalf("expected health probe below info level, got %s", buf.String())
	}
}
