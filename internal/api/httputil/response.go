// Package httputil writes the facade's JSON responses and maps error kinds
// onto HTTP statuses.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/blockbus/gateway/internal/errs"
	"github.com/blockbus/gateway/internal/logging"
)

// descriptionBody is the minimal error envelope.
type descriptionBody struct {
	Description string `json:"description"`
}

// JSON writes a success response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// Error maps an error's kind to the HTTP status and minimal JSON body, and
// routes it to the right log severity. Internal failures additionally reach
// the capture sink.
func Error(w http.ResponseWriter, err error) {
	switch errs.KindOf(err) {
	case errs.BadRequest, errs.MalformedInput:
		slog.Warn(err.Error())
		writeDescription(w, http.StatusBadRequest, "Bad request")
	case errs.Unauthorized:
		slog.Warn(err.Error())
		writeDescription(w, http.StatusUnauthorized, "Unauthorized")
	case errs.NotFound:
		slog.Warn(err.Error())
		writeDescription(w, http.StatusNotFound, "Not found")
	case errs.UnprocessableEntity:
		slog.Warn(err.Error())
		fields := errs.ValidationFields(err)
		if fields == nil {
			fields = map[string][]string{}
		}
		JSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
	default:
		logging.CaptureError(err)
		writeDescription(w, http.StatusInternalServerError, "Internal server error")
	}
}

// NotFoundHandler answers unknown routes with the JSON 404 body.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeDescription(w, http.StatusNotFound, "Not found")
}

func writeDescription(w http.ResponseWriter, status int, description string) {
	JSON(w, status, descriptionBody{Description: description})
}
