package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/R3E-Network/applyflow/internal/errors"
)

// ErrorBody is the JSON error envelope returned by the API.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a single failure.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, status int, code errors.ErrorCode, message string, details map[string]any) {
	WriteJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:    string(code),
		Message: message,
		Details: details,
	}})
}

// WriteServiceError writes err using its ServiceError status and code.
// Errors without a ServiceError in their chain become 500 INTERNAL_ERROR and
// their text is not exposed.
func WriteServiceError(w http.ResponseWriter, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("", err)
	}
	WriteError(w, se.HTTPStatus, se.Code, se.Message, se.Details)
}
