package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alarmdeck/alarmdeck/internal/api"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

type ruleRequest struct {
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Action         string         `json:"action"`
	Condition      database.JSONB `json:"condition"`
	Params         database.JSONB `json:"params"`
	Priority       *int           `json:"priority"`
	Enabled        *bool          `json:"enabled"`
	EffectiveFrom  *time.Time     `json:"effective_from"`
	EffectiveUntil *time.Time     `json:"effective_until"`
}

func (h *APIHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&database.NoiseRule{})
	if v := r.URL.Query().Get("type"); v != "" {
		query = query.Where("type = ?", v)
	}
	if v := r.URL.Query().Get("enabled"); v != "" {
		query = query.Where("enabled = ?", v == "true")
	}

	var rules []database.NoiseRule
	if err := query.Order("priority ASC, id ASC").Find(&rules).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	api.RespondJSON(w, http.StatusOK, rules)
}

func (h *APIHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := database.NoiseRule{
		Name:           req.Name,
		Type:           database.RuleType(req.Type),
		Action:         database.RuleAction(req.Action),
		Condition:      req.Condition,
		Params:         req.Params,
		Priority:       100,
		Enabled:        true,
		EffectiveFrom:  req.EffectiveFrom,
		EffectiveUntil: req.EffectiveUntil,
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	if err := database.ValidateRule(&rule); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.db.Create(&rule).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to create rule")
		return
	}

	h.noise.ClearCache()
	log.Info().Str("rule", rule.Name).Str("type", string(rule.Type)).Msg("noise rule created")
	api.RespondJSON(w, http.StatusCreated, rule)
}

func (h *APIHandler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.ruleByID(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, rule)
}

func (h *APIHandler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.ruleByID(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Name != "" {
		rule.Name = req.Name
	}
	if req.Type != "" {
		rule.Type = database.RuleType(req.Type)
	}
	if req.Action != "" {
		rule.Action = database.RuleAction(req.Action)
	}
	if req.Condition != nil {
		rule.Condition = req.Condition
	}
	if req.Params != nil {
		rule.Params = req.Params
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	rule.EffectiveFrom = req.EffectiveFrom
	rule.EffectiveUntil = req.EffectiveUntil

	if err := database.ValidateRule(rule); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.db.Save(rule).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to update rule")
		return
	}

	h.noise.ClearCache()
	api.RespondJSON(w, http.StatusOK, rule)
}

func (h *APIHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.ruleByID(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(rule).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	h.noise.ClearCache()
	api.RespondNoContent(w)
}

func (h *APIHandler) ruleByID(w http.ResponseWriter, r *http.Request) (*database.NoiseRule, bool) {
	id, err := parsePositiveInt(r.PathValue("id"))
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid rule ID")
		return nil, false
	}
	var rule database.NoiseRule
	if err := h.db.First(&rule, id).Error; err != nil {
		api.RespondError(w, http.StatusNotFound, "Rule not found")
		return nil, false
	}
	return &rule, true
}

type dedupSettingsRequest struct {
	Enabled             *bool    `json:"enabled"`
	Strategy            string   `json:"strategy"`
	TimeWindowMinutes   *int     `json:"time_window_minutes"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	MaxCandidates       *int     `json:"max_candidates"`
}

func (h *APIHandler) handleGetDedupSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetOrCreateDedupSettings(h.db)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load dedup settings")
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

func (h *APIHandler) handleUpdateDedupSettings(w http.ResponseWriter, r *http.Request) {
	var req dedupSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := database.GetOrCreateDedupSettings(h.db)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load dedup settings")
		return
	}

	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.Strategy != "" {
		settings.Strategy = req.Strategy
	}
	if req.TimeWindowMinutes != nil {
		settings.TimeWindowMinutes = *req.TimeWindowMinutes
	}
	if req.SimilarityThreshold != nil {
		settings.SimilarityThreshold = *req.SimilarityThreshold
	}
	if req.MaxCandidates != nil {
		settings.MaxCandidates = *req.MaxCandidates
	}

	if err := database.UpdateDedupSettings(h.db, settings); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}
