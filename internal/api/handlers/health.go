package handlers

import (
	"net/http"

	"github.com/blockbus/gateway/internal/api/httputil"
)

// healthResponse reports process liveness.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Healthcheck handles GET /v1/healthcheck.
func Healthcheck(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version})
	}
}
