package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// ErrorBody is the JSON shape of every error the server writes itself.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// WriteError writes an ErrorBody for status. The error field is the standard
// status text.
func WriteError(w http.ResponseWriter, status int, message string) {
	body, err := json.Marshal(ErrorBody{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
	if err != nil {
		http.Error(w, message, status)
		return
	}
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
