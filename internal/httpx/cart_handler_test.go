package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type recordInvalidator struct {
	patterns []string
}

func (r *recordInvalidator) DeletePattern(_ context.Context, pattern string) {
	r.patterns = append(r.patterns, pattern)
}

func TestInvalidateSnapshots(t *testing.T) {
	inv := &recordInvalidator{}
	router := NewRouter()
	(&CartHandler{Snapshots: inv, Log: zap.NewNop()}).Register(router)

	req := httptest.NewRequest(http.MethodDelete, "/cart/snapshots", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if len(inv.patterns) != 1 || inv.patterns[0] != "cart:*" {
		t.Fatalf("invalidated %v, want [cart:*]", inv.patterns)
	}
}

func TestCartEndpointsRequireUser(t *testing.T) {
	router := NewRouter()
	(&CartHandler{Log: zap.NewNop()}).Register(router)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", rec.Code)
	}
}
