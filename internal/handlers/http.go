package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPHandler wires the unauthenticated HTTP surface
type HTTPHandler struct {
	webhookHandler *WebhookHandler
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(webhookHandler *WebhookHandler) *HTTPHandler {
	return &HTTPHandler{
		webhookHandler: webhookHandler,
	}
}

// SetupRoutes configures all HTTP routes
func (h *HTTPHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	// Alarm webhooks: /webhook/alarm/{source_uuid}
	if h.webhookHandler != nil {
		mux.HandleFunc("/webhook/alarm/", h.webhookHandler.HandleWebhook)
	}
}

// handleHealth returns a simple health check response
func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{
		"status":  "ok",
		"version": "1.0.0",
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("error encoding health response")
	}
}
