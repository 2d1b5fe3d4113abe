package handlers

import (
	"errors"
	"net/http"

	"github.com/alarmdeck/alarmdeck/internal/api"
	"github.com/alarmdeck/alarmdeck/internal/database"
	"github.com/alarmdeck/alarmdeck/internal/services"
)

type transitionRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type assignRequest struct {
	Assignee string `json:"assignee"`
	Notes    string `json:"notes"`
}

func (h *APIHandler) handleGetProcessing(w http.ResponseWriter, r *http.Request) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	processing, err := h.lifecycle.GetProcessing(r.Context(), alarm.ID)
	if err != nil {
		if errors.Is(err, services.ErrProcessingNotFound) {
			api.RespondError(w, http.StatusNotFound, "No processing record for alarm")
			return
		}
		api.RespondError(w, http.StatusInternalServerError, "Failed to load processing record")
		return
	}
	api.RespondJSON(w, http.StatusOK, processing)
}

func (h *APIHandler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	history, err := h.lifecycle.History(r.Context(), alarm.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	api.RespondJSON(w, http.StatusOK, history)
}

func (h *APIHandler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.transitionTo(w, r, database.ProcessingAcknowledged)
}

func (h *APIHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	h.transitionTo(w, r, database.ProcessingResolved)
}

func (h *APIHandler) handleClose(w http.ResponseWriter, r *http.Request) {
	h.transitionTo(w, r, database.ProcessingClosed)
}

func (h *APIHandler) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.runTransition(w, r, database.ProcessingStatus(req.Status), req.Notes)
}

func (h *APIHandler) transitionTo(w http.ResponseWriter, r *http.Request, to database.ProcessingStatus) {
	var req transitionRequest
	// Body is optional for the shorthand endpoints
	_ = api.DecodeJSON(r, &req)
	h.runTransition(w, r, to, req.Notes)
}

func (h *APIHandler) runTransition(w http.ResponseWriter, r *http.Request, to database.ProcessingStatus, notes string) {
	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	err := h.lifecycle.Transition(r.Context(), alarm.ID, to, actor(r), notes)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrProcessingNotFound):
		api.RespondError(w, http.StatusNotFound, "No processing record for alarm")
		return
	case errors.Is(err, services.ErrInvalidTransition):
		api.RespondErrorWithCode(w, http.StatusConflict, "invalid_transition", err.Error())
		return
	case errors.Is(err, services.ErrConcurrentUpdate):
		api.RespondErrorWithCode(w, http.StatusConflict, "concurrent_update",
			"Alarm state changed concurrently, retry the operation")
		return
	default:
		api.RespondError(w, http.StatusInternalServerError, "Transition failed")
		return
	}

	processing, err := h.lifecycle.GetProcessing(r.Context(), alarm.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load processing record")
		return
	}
	api.RespondJSON(w, http.StatusOK, processing)
}

func (h *APIHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Assignee == "" {
		api.RespondError(w, http.StatusBadRequest, "Assignee is required")
		return
	}

	alarm, ok := h.alarmByUUID(w, r)
	if !ok {
		return
	}

	if err := h.lifecycle.Assign(r.Context(), alarm.ID, req.Assignee, actor(r)); err != nil {
		if errors.Is(err, services.ErrProcessingNotFound) {
			api.RespondError(w, http.StatusNotFound, "No processing record for alarm")
			return
		}
		api.RespondError(w, http.StatusInternalServerError, "Assignment failed")
		return
	}

	processing, err := h.lifecycle.GetProcessing(r.Context(), alarm.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load processing record")
		return
	}
	api.RespondJSON(w, http.StatusOK, processing)
}
