package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/logging"
)

const (
	headerUserID    = "X-User-Id"
	headerRequestID = "X-Request-Id"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRequestID
)

// withRequestID assigns every request a request id, reusing the caller's
// X-Request-Id if it supplied one, echoes it back on the response, and
// attaches a logger tagged with it so every log line for this request can
// be correlated. The id stays within the HTTP request: it is not stored on
// outbox records or carried in message-log headers, so materializer log
// lines do not carry it.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		ctx = logging.WithRequestID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireUserID parses the X-User-Id header into the caller's canonical
// id and rejects the request if it is missing or malformed. The trust
// model assumes the id itself was already authenticated upstream; this
// middleware only validates shape.
func requireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(headerUserID)
		if raw == "" {
			writeError(w, r, apperr.New(apperr.CodeUserIDEmpty, "X-User-Id header is required"))
			return
		}
		userID, err := idgen.Parse(raw)
		if err != nil {
			writeError(w, r, apperr.New(apperr.CodeUserIDInvalidFormat, "X-User-Id is not a valid id"))
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) idgen.ID {
	id, _ := ctx.Value(ctxKeyUserID).(idgen.ID)
	return id
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
