package api

import (
	"encoding/json"
	"net/http"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/logging"
)

// envelope is the list-response shape every paginated endpoint returns.
type envelope struct {
	Data       interface{} `json:"data"`
	Pagination pagination  `json:"pagination"`
}

type pagination struct {
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

type errorBody struct {
	Error     apperr.Code `json:"error"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.L().Error().Err(err).Msg("encode response body")
	}
}

func writePage(w http.ResponseWriter, data interface{}, nextCursor string, hasMore bool) {
	writeJSON(w, http.StatusOK, envelope{
		Data:       data,
		Pagination: pagination{NextCursor: nextCursor, HasMore: hasMore},
	})
}

// writeError maps err to the HTTP status its apperr.Code carries, falling
// back to 500 for errors that never passed through apperr.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal(err)
	}

	requestID := requestIDFromContext(r.Context())
	if appErr.Code == apperr.CodeInternal {
		logging.FromContext(r.Context()).Error().Err(err).Str("request_id", requestID).Msg("internal error")
	}

	writeJSON(w, appErr.HTTPStatus(), errorBody{
		Error:     appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID,
	})
}
