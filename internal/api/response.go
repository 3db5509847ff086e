package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nicolascarrizook/tresdiasycarga-bot-sub001/internal/models"
)

// fallbackError is marshaled once at startup so a failed encode can still
// produce a well-formed error body.
var fallbackError = mustMarshal(models.Error("internal server error"))

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// writeJSONResponse encodes the body before touching the ResponseWriter, so
// an encode failure can still switch the status code to 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server failed to encode response body", "error", err)
		data = fallbackError
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Error("Server failed to write response body", "error", err)
	}
}
