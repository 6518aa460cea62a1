package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ControlHandler exposes status, cancel and hotkey actions.
type ControlHandler struct {
	ctl Controller
}

func NewControlHandler(ctl Controller) *ControlHandler {
	return &ControlHandler{ctl: ctl}
}

func (h *ControlHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *ControlHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"cancelled": h.ctl.Cancel()})
}

// Action fires a hotkey action as if its binding had been pressed.
func (h *ControlHandler) Action(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	if err := h.ctl.Trigger(name); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "unknown action", err.Error())
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"action": name})
}

// UpdateHotkeys accepts a JSON object of action name to hotkey string and
// returns the resulting bindings.
func (h *ControlHandler) UpdateHotkeys(w http.ResponseWriter, r *http.Request) {
	var changes map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&changes); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(changes) == 0 {
		WriteError(w, http.StatusBadRequest, "no hotkeys given")
		return
	}
	if err := h.ctl.UpdateHotkeys(changes); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid hotkeys", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, h.ctl.Status().Hotkeys)
}

func (h *ControlHandler) Routes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Put("/hotkeys", h.UpdateHotkeys)
	r.Post("/cancel", h.Cancel)
	r.Post("/actions/{action}", h.Action)
}
