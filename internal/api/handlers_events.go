package api

import (
	"encoding/json"
	"net/http"

	"github.com/hookrelay/hookrelay/internal/delivery"
)

type EventHandler struct {
	dispatcher *delivery.Dispatcher
}

func NewEventHandler(dispatcher *delivery.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

type dispatchRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Dispatch fans an event out to the tenant's subscribed endpoints. The
// response carries only aggregate counts; per-endpoint failure detail lives
// in the delivery log and health report.
func (h *EventHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("{}")
	}

	result, err := h.dispatcher.Dispatch(r.Context(), tenant.ID, req.EventType, req.Payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to dispatch event")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
