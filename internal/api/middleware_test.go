package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dtambussi/fanout/internal/idgen"
)

func TestRequireUserIDRejectsMissingHeader(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	rec := httptest.NewRecorder()
	requireUserID(next).ServeHTTP(rec, req)

	if called {
		t.Fatal("handler must not run when X-User-Id is missing")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRequireUserIDRejectsMalformedHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a malformed X-User-Id")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set(headerUserID, "not-an-id")
	rec := httptest.NewRecorder()
	requireUserID(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRequireUserIDAttachesParsedCaller(t *testing.T) {
	userID := idgen.Generate()
	var gotCaller idgen.ID

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = callerFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set(headerUserID, userID.String())
	rec := httptest.NewRecorder()
	requireUserID(next).ServeHTTP(rec, req)

	if gotCaller != userID {
		t.Errorf("callerFromContext = %s, want %s", gotCaller, userID)
	}
}

func TestWithRequestIDGeneratesWhenAbsentAndEchoesHeader(t *testing.T) {
	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = requestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	rec := httptest.NewRecorder()
	withRequestID(next).ServeHTTP(rec, req)

	if gotID == "" {
		t.Fatal("withRequestID must generate a request id when none was supplied")
	}
	if rec.Header().Get(headerRequestID) != gotID {
		t.Errorf("response header %s = %q, want %q", headerRequestID, rec.Header().Get(headerRequestID), gotID)
	}
}

func TestWithRequestIDReusesSuppliedHeader(t *testing.T) {
	const supplied = "caller-supplied-id"
	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = requestIDFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/actuator/health", nil)
	req.Header.Set(headerRequestID, supplied)
	rec := httptest.NewRecorder()
	withRequestID(next).ServeHTTP(rec, req)

	if gotID != supplied {
		t.Errorf("requestIDFromContext = %q, want %q", gotID, supplied)
	}
	if rec.Header().Get(headerRequestID) != supplied {
		t.Errorf("response header must echo the caller-supplied request id")
	}
}
