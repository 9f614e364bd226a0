package httpx

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWrapMapsStatusErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", NotFound(errors.New("page not found")), http.StatusNotFound},
		{"bad request", BadRequest(errors.New("bad ts")), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Wrap(func(http.ResponseWriter, *http.Request) error { return tt.err })
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("s3cret")
	h := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := UserFromCtx(r)
		if err != nil {
			t.Errorf("UserFromCtx: %v", err)
		}
		WriteJSON(w, map[string]string{"sub": sub}, http.StatusOK)
	}))

	good, err := SignToken(secret, "editor", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := SignToken(secret, "editor", -time.Minute)
	forged, _ := SignToken([]byte("other"), "editor", time.Minute)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"forged", "Bearer " + forged, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestClientIPIgnoresForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("ClientIP = %s", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("ClientIP with spoofed header = %s", got)
	}
}

func TestForwardedForUsesProxyHop(t *testing.T) {
	var got string
	h := ForwardedFor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))

	tests := []struct {
		name string
		xff  []string
		want string
	}{
		{"no header", nil, "10.0.0.1"},
		{"single hop", []string{"203.0.113.9"}, "203.0.113.9"},
		{"client prepended a hop", []string{"1.2.3.4, 203.0.113.9"}, "203.0.113.9"},
		{"repeated header", []string{"1.2.3.4", "203.0.113.9"}, "203.0.113.9"},
		{"garbage", []string{"not-an-ip"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Fatalf("ClientIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWithLoggingOmitsPathValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /hooks/{token}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := WithLogging(logger, mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/hooks/123456:SECRET", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere/SECRET", nil))

	out := buf.String()
	if bytes.Contains(buf.Bytes(), []byte("SECRET")) {
		t.Fatalf("log leaks path: %s", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"route":"POST /hooks/{token}"`)) {
		t.Fatalf("log misses route: %s", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"route":"unmatched"`)) {
		t.Fatalf("log misses unmatched route: %s", out)
	}
}
