package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/znz-systems/sortbox/internal/ratelimit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestBearerToken(t *testing.T) {
	h := BearerToken("secret")(okHandler)
	cases := map[string]int{
		"":              http.StatusUnauthorized,
		"secret":        http.StatusUnauthorized,
		"Bearer wrong":  http.StatusUnauthorized,
		"Bearer ":       http.StatusUnauthorized,
		"Bearer secret": http.StatusNoContent,
	}
	for header, code := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != code {
			t.Fatalf("%q: expected %d, got %d", header, code, rr.Code)
		}
	}
}

func TestBearerToken_Unconfigured(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	BearerToken("  ")(okHandler).ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(ratelimit.NewLimiter(0.001, 1))(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("first request: expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second request: expected 429, got %d", rr.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.1:5555"
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, other)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("other client: expected 204, got %d", rr.Code)
	}
}
