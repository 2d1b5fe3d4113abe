package handlers

import (
	"errors"
	"net/http"

	"github.com/alarmdeck/alarmdeck/internal/api"
	"github.com/alarmdeck/alarmdeck/internal/services"
)

type escalateRequest struct {
	Team string `json:"team"`
}

func (h *APIHandler) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req escalateRequest
	// Team is optional, resolved from the alarm's service when omitted
	_ = api.DecodeJSON(r, &req)

	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	started, err := h.escalation.Trigger(r.Context(), alarm.ID, req.Team)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrAlreadyEscalating):
		api.RespondErrorWithCode(w, http.StatusConflict, "already_escalating",
			"An escalation is already running for this alarm")
		return
	case errors.Is(err, services.ErrNoResponders):
		api.RespondErrorWithCode(w, http.StatusUnprocessableEntity, "no_responders", err.Error())
		return
	default:
		api.RespondError(w, http.StatusInternalServerError, "Failed to start escalation")
		return
	}

	api.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"started":  started,
		"alarm_id": alarm.ID,
	})
}

func (h *APIHandler) handleEscalationStatus(w http.ResponseWriter, r *http.Request) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.escalation.Status(alarm.ID)
	if err != nil {
		api.RespondError(w, http.StatusNotFound, "No active escalation for alarm")
		return
	}
	api.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *APIHandler) handleEscalationAck(w http.ResponseWriter, r *http.Request) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	if err := h.escalation.Acknowledge(r.Context(), alarm.ID, actor(r)); err != nil {
		if errors.Is(err, services.ErrNoExecution) {
			api.RespondError(w, http.StatusNotFound, "No active escalation for alarm")
			return
		}
		api.RespondError(w, http.StatusInternalServerError, "Failed to acknowledge escalation")
		return
	}
	api.RespondNoContent(w)
}

func (h *APIHandler) handleEscalationResolve(w http.ResponseWriter, r *http.Request) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	if err := h.escalation.Resolve(r.Context(), alarm.ID, actor(r)); err != nil {
		if errors.Is(err, services.ErrNoExecution) {
			api.RespondError(w, http.StatusNotFound, "No active escalation for alarm")
			return
		}
		api.RespondError(w, http.StatusInternalServerError, "Failed to resolve escalation")
		return
	}
	api.RespondNoContent(w)
}
