package handlers

import (
	"net/http"

	"github.com/alarmdeck/alarmdeck/internal/api"
	"github.com/alarmdeck/alarmdeck/internal/database"
)

type policyRequest struct {
	Name     string                    `json:"name"`
	Team     string                    `json:"team"`
	Severity string                    `json:"severity"`
	Levels   database.EscalationLevels `json:"levels"`
	Enabled  *bool                     `json:"enabled"`
}

func (h *APIHandler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	var policies []database.EscalationPolicy
	if err := h.db.Order("id ASC").Find(&policies).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list policies")
		return
	}
	api.RespondJSON(w, http.StatusOK, policies)
}

func (h *APIHandler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy := database.EscalationPolicy{
		Name:     req.Name,
		Team:     req.Team,
		Severity: database.Severity(req.Severity),
		Levels:   req.Levels,
		Enabled:  req.Enabled == nil || *req.Enabled,
	}
	if err := policy.Validate(); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.db.Create(&policy).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to create policy")
		return
	}
	api.RespondJSON(w, http.StatusCreated, policy)
}

func (h *APIHandler) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := parsePositiveInt(r.PathValue("id"))
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}

	var policy database.EscalationPolicy
	if err := h.db.First(&policy, id).Error; err != nil {
		api.RespondError(w, http.StatusNotFound, "Policy not found")
		return
	}

	var req policyRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Name != "" {
		policy.Name = req.Name
	}
	policy.Team = req.Team
	policy.Severity = database.Severity(req.Severity)
	if req.Levels != nil {
		policy.Levels = req.Levels
	}
	if req.Enabled != nil {
		policy.Enabled = *req.Enabled
	}

	if err := policy.Validate(); err != nil {
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.db.Save(&policy).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to update policy")
		return
	}
	api.RespondJSON(w, http.StatusOK, policy)
}

func (h *APIHandler) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := parsePositiveInt(r.PathValue("id"))
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}

	result := h.db.Delete(&database.EscalationPolicy{}, id)
	if result.Error != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete policy")
		return
	}
	if result.RowsAffected == 0 {
		api.RespondError(w, http.StatusNotFound, "Policy not found")
		return
	}
	api.RespondNoContent(w)
}

func (h *APIHandler) handleListTeams(w http.ResponseWriter, r *http.Request) {
	var teams []database.Team
	if err := h.db.Preload("Members").Order("id ASC").Find(&teams).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list teams")
		return
	}
	api.RespondJSON(w, http.StatusOK, teams)
}
