package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/alarms"
	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/services"
)

// WebhookHandler accepts alarms pushed by monitoring systems
type WebhookHandler struct {
	db     *gorm.DB
	ingest *services.IngestService

	// Registered adapters by source type
	adapters map[string]alarms.Adapter
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *gorm.DB, ingest *services.IngestService) *WebhookHandler {
	return &WebhookHandler{
		db:       db,
		ingest:   ingest,
		adapters: make(map[string]alarms.Adapter),
	}
}

// RegisterAdapter registers an alarm adapter for a source type
func (h *WebhookHandler) RegisterAdapter(adapter alarms.Adapter) {
	h.adapters[adapter.GetSourceType()] = adapter
	log.Info().Str("source_type", adapter.GetSourceType()).Msg("registered alarm adapter")
}

// HandleWebhook processes incoming webhook requests
// Route: /webhook/alarm/{source_uuid}
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/webhook/alarm/")
	sourceUUID := strings.TrimSuffix(path, "/")
	if sourceUUID == "" {
		http.Error(w, "Missing source UUID", http.StatusBadRequest)
		return
	}

	var source database.AlarmSource
	if err := h.db.Where("uuid = ?", sourceUUID).First(&source).Error; err != nil {
		log.Warn().Str("uuid", sourceUUID).Err(err).Msg("alarm source not found")
		http.Error(w, "Source not found", http.StatusNotFound)
		return
	}
	if !source.Enabled {
		http.Error(w, "Source disabled", http.StatusForbidden)
		return
	}

	adapter, ok := h.adapters[source.Type]
	if !ok {
		log.Warn().Str("type", source.Type).Msg("no adapter for source type")
		http.Error(w, "Unsupported source type", http.StatusBadRequest)
		return
	}

	if err := adapter.ValidateWebhookSecret(r, &source); err != nil {
		log.Warn().Str("uuid", sourceUUID).Err(err).Msg("webhook secret validation failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	parsed, err := adapter.ParsePayload(body, &source)
	if err != nil {
		log.Warn().Str("uuid", sourceUUID).Err(err).Msg("failed to parse alarm payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	log.Info().Int("count", len(parsed)).Str("source_type", source.Type).
		Str("source", source.Name).Msg("received alarms")

	results := h.ingest.SubmitBatch(r.Context(), parsed)

	accepted, duplicates, filtered := 0, 0, 0
	for _, result := range results {
		switch {
		case result.Duplicate:
			duplicates++
		case result.Discarded || result.Suppressed:
			filtered++
		case result.Accepted:
			accepted++
		}
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Received %d alarms (%d accepted, %d duplicates, %d filtered)",
		len(parsed), accepted, duplicates, filtered)
}
