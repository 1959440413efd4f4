package httpserver

import (
	"net/http"
	"time"

	"github.com/meuev/server/pkg/responders"
)

// health reports liveness and configuration posture. A missing processor
// credential is surfaced here but does not fail the check: the process is
// up, requests will fail downstream.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"uptime":               now.Sub(serverStartTime).String(),
		"timestamp":            now.UTC(),
		"processor_configured": h.cfg.MercadoPago.Configured(),
	})
}
