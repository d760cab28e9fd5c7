package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

func TestParseLimitDefaultsWhenAbsent(t *testing.T) {
	h := &Handler{cfg: Config{DefaultPageSize: 20, MaxPageSize: 100}}
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if got := h.parseLimit(req); got != 20 {
		t.Errorf("parseLimit = %d, want 20", got)
	}
}

func TestParseLimitClampsToMax(t *testing.T) {
	h := &Handler{cfg: Config{DefaultPageSize: 20, MaxPageSize: 100}}
	req := httptest.NewRequest(http.MethodGet, "/x?limit=500", nil)
	if got := h.parseLimit(req); got != 100 {
		t.Errorf("parseLimit = %d, want 100", got)
	}
}

func TestParseLimitFallsBackOnGarbageValue(t *testing.T) {
	h := &Handler{cfg: Config{DefaultPageSize: 20, MaxPageSize: 100}}
	req := httptest.NewRequest(http.MethodGet, "/x?limit=not-a-number", nil)
	if got := h.parseLimit(req); got != 20 {
		t.Errorf("parseLimit = %d, want 20 (default)", got)
	}
}

func TestParseInstantCursorRoundTrips(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := parseInstantCursor(want.Format(time.RFC3339Nano))
	if got == nil || !got.Equal(want) {
		t.Errorf("parseInstantCursor = %v, want %v", got, want)
	}
}

func TestParseInstantCursorFallsBackOnGarbage(t *testing.T) {
	if got := parseInstantCursor("not a timestamp"); got != nil {
		t.Errorf("parseInstantCursor must return nil for a malformed cursor, got %v", got)
	}
}

func TestParseInstantCursorNilWhenEmpty(t *testing.T) {
	if got := parseInstantCursor(""); got != nil {
		t.Errorf("parseInstantCursor(\"\") = %v, want nil", got)
	}
}

func TestInstantCursorEmptyWhenNoMorePages(t *testing.T) {
	edges := []models.Follow{{CreatedAt: time.Now()}}
	if got := instantCursor(edges, false); got != "" {
		t.Errorf("instantCursor = %q, want empty when hasMore is false", got)
	}
}

func TestInstantCursorUsesLastEdge(t *testing.T) {
	last := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	edges := []models.Follow{
		{CreatedAt: last.Add(time.Hour)},
		{CreatedAt: last},
	}
	got := instantCursor(edges, true)
	want := last.Format(time.RFC3339Nano)
	if got != want {
		t.Errorf("instantCursor = %q, want %q", got, want)
	}
}

func TestRequireCallerRejectsMismatch(t *testing.T) {
	caller := idgen.Generate()
	pathID := idgen.Generate()
	ctx := context.WithValue(context.Background(), ctxKeyUserID, caller)

	err := requireCaller(ctx, pathID)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Code != apperr.CodeForbidden {
		t.Fatalf("requireCaller error = %v, want CodeForbidden", err)
	}
}

func TestRequireCallerAllowsMatch(t *testing.T) {
	caller := idgen.Generate()
	ctx := context.WithValue(context.Background(), ctxKeyUserID, caller)

	if err := requireCaller(ctx, caller); err != nil {
		t.Errorf("requireCaller returned %v, want nil for matching caller", err)
	}
}
