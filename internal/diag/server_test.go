package diag

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lwaobs/pkg/logx"
)

func TestHandlerRequiresToken(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	h := s.Handler("s3cret")

	for _, tc := range []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong", "/healthz?token=nope", "", http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"bearer", "/healthz", "Bearer s3cret", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestStatusDocument(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	s.Register("executor", func() any { return map[string]int{"rows": 3} })
	s.Register("recurring", func() any { return []string{"night"} })

	rec := httptest.NewRecorder()
	s.Handler("").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var doc struct {
		Executor  map[string]int `json:"executor"`
		Recurring []string       `json:"recurring"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Executor["rows"] != 3 || len(doc.Recurring) != 1 {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:1":    true,
		"[::1]:6060":     true,
		":6060":          false,
		"0.0.0.0:6060":   false,
		"10.1.1.2:6060":  false,
		"bogus":          false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}
