package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/alarmdeck/alarmdeck/internal/api"
	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/middleware"
	"github.com/alarmdeck/alarmdeck/internal/services"
)

// APIHandler handles the management API for the UI and automation
type APIHandler struct {
	db         *gorm.DB
	dedup      *services.DedupService
	noise      *services.NoiseService
	lifecycle  *services.LifecycleService
	escalation *services.EscalationService
	stats      *services.StatsService
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	db *gorm.DB,
	dedup *services.DedupService,
	noise *services.NoiseService,
	lifecycle *services.LifecycleService,
	escalation *services.EscalationService,
	stats *services.StatsService,
) *APIHandler {
	return &APIHandler{
		db:         db,
		dedup:      dedup,
		noise:      noise,
		lifecycle:  lifecycle,
		escalation: escalation,
		stats:      stats,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Alarms
	mux.HandleFunc("GET /api/alarms", h.handleListAlarms)
	mux.HandleFunc("GET /api/alarms/{uuid}", h.handleGetAlarm)

	// Lifecycle operations
	mux.HandleFunc("GET /api/alarms/{uuid}/processing", h.handleGetProcessing)
	mux.HandleFunc("GET /api/alarms/{uuid}/history", h.handleGetHistory)
	mux.HandleFunc("POST /api/alarms/{uuid}/acknowledge", h.handleAcknowledge)
	mux.HandleFunc("POST /api/alarms/{uuid}/assign", h.handleAssign)
	mux.HandleFunc("POST /api/alarms/{uuid}/transition", h.handleTransition)
	mux.HandleFunc("POST /api/alarms/{uuid}/resolve", h.handleResolve)
	mux.HandleFunc("POST /api/alarms/{uuid}/close", h.handleClose)

	// Escalation operations
	mux.HandleFunc("POST /api/alarms/{uuid}/escalate", h.handleEscalate)
	mux.HandleFunc("GET /api/alarms/{uuid}/escalation", h.handleEscalationStatus)
	mux.HandleFunc("POST /api/alarms/{uuid}/escalation/acknowledge", h.handleEscalationAck)
	mux.HandleFunc("POST /api/alarms/{uuid}/escalation/resolve", h.handleEscalationResolve)

	// Noise rules
	mux.HandleFunc("GET /api/rules", h.handleListRules)
	mux.HandleFunc("POST /api/rules", h.handleCreateRule)
	mux.HandleFunc("GET /api/rules/{id}", h.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", h.handleUpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", h.handleDeleteRule)

	// Dedup settings
	mux.HandleFunc("GET /api/settings/dedup", h.handleGetDedupSettings)
	mux.HandleFunc("PUT /api/settings/dedup", h.handleUpdateDedupSettings)

	// Escalation policies and teams
	mux.HandleFunc("GET /api/policies", h.handleListPolicies)
	mux.HandleFunc("POST /api/policies", h.handleCreatePolicy)
	mux.HandleFunc("PUT /api/policies/{id}", h.handleUpdatePolicy)
	mux.HandleFunc("DELETE /api/policies/{id}", h.handleDeletePolicy)
	mux.HandleFunc("GET /api/teams", h.handleListTeams)

	// Sources
	mux.HandleFunc("GET /api/sources", h.handleListSources)
	mux.HandleFunc("POST /api/sources", h.handleCreateSource)
	mux.HandleFunc("DELETE /api/sources/{uuid}", h.handleDeleteSource)

	// Statistics
	mux.HandleFunc("GET /api/stats/alarms", h.handleAlarmStats)
	mux.HandleFunc("GET /api/stats/rules", h.handleRuleStats)
	mux.HandleFunc("GET /api/stats/processing", h.handleProcessingStats)
}

// actor resolves who performs a management operation. The JWT user wins;
// unauthenticated deployments fall back to the system actor.
func actor(r *http.Request) string {
	if user := middleware.GetUserFromContext(r.Context()); user != "" {
		return user
	}
	return services.SystemActor
}

// alarmByUUID loads an alarm addressed by its public UUID
func (h *APIHandler) alarmByUUID(w http.ResponseWriter, r *http.Request) (*database.Alarm, bool) {
	uuid := r.PathValue("uuid")
	var alarm database.Alarm
	if err := h.db.Where("uuid = ?", uuid).First(&alarm).Error; err != nil {
		api.RespondError(w, http.StatusNotFound, "Alarm not found")
		return nil, false
	}
	return &alarm, true
}

// statsWindow parses a ?hours= query, defaulting to the last 24 hours
func statsWindow(r *http.Request) time.Time {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			hours = n
		}
	}
	return time.Now().Add(-time.Duration(hours) * time.Hour)
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("value must be positive, got %d", n)
	}
	return n, nil
}

func (h *APIHandler) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	p := api.ParsePagination(r)
	query := h.db.Model(&database.Alarm{})

	if v := r.URL.Query().Get("status"); v != "" {
		query = query.Where("status = ?", v)
	}
	if v := r.URL.Query().Get("severity"); v != "" {
		query = query.Where("severity = ?", v)
	}
	if v := r.URL.Query().Get("source"); v != "" {
		query = query.Where("source = ?", v)
	}
	if v := r.URL.Query().Get("host"); v != "" {
		query = query.Where("host = ?", v)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to count alarms")
		return
	}

	var alarmList []database.Alarm
	err := query.Order("last_occurred_at DESC").
		Offset(p.Offset()).Limit(p.PerPage).Find(&alarmList).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alarms")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"alarms":      alarmList,
		"total":       total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages(total),
	})
}

func (h *APIHandler) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, alarm)
}

func (h *APIHandler) handleAlarmStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.AlarmStats(r.Context(), statsWindow(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute alarm stats")
		api.RespondError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	api.RespondJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) handleRuleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.RuleStats(r.Context(), statsWindow(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute rule stats")
		api.RespondError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	api.RespondJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) handleProcessingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.ProcessingStats(r.Context(), statsWindow(r))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute processing stats")
		api.RespondError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	api.RespondJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) handleListSources(w http.ResponseWriter, r *http.Request) {
	var sources []database.AlarmSource
	if err := h.db.Order("id ASC").Find(&sources).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list sources")
		return
	}
	api.RespondJSON(w, http.StatusOK, sources)
}

func (h *APIHandler) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name" validate:"required,min=1,max=128"`
		Type          string `json:"type" validate:"required,oneof=alertmanager grafana zabbix generic"`
		WebhookSecret string `json:"webhook_secret" validate:"max=256"`
		Environment   string `json:"environment" validate:"max=64"`
	}
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	source := database.AlarmSource{
		UUID:          uuid.NewString(),
		Name:          req.Name,
		Type:          req.Type,
		WebhookSecret: req.WebhookSecret,
		Environment:   req.Environment,
		Enabled:       true,
	}
	if err := h.db.Create(&source).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to create source")
		return
	}
	api.RespondJSON(w, http.StatusCreated, source)
}

func (h *APIHandler) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	result := h.db.Where("uuid = ?", uuid).Delete(&database.AlarmSource{})
	if result.Error != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete source")
		return
	}
	if result.RowsAffected == 0 {
		api.RespondError(w, http.StatusNotFound, "Source not found")
		return
	}
	api.RespondNoContent(w)
}
