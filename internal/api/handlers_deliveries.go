package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/storage"
)

type DeliveryHandler struct {
	store storage.Storage
}

func NewDeliveryHandler(store storage.Storage) *DeliveryHandler {
	return &DeliveryHandler{store: store}
}

func (h *DeliveryHandler) getOwned(w http.ResponseWriter, r *http.Request) *models.Delivery {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}

	d, err := h.store.GetDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get delivery")
		return nil
	}
	if d == nil || d.TenantID != tenant.ID {
		writeError(w, http.StatusNotFound, "delivery not found")
		return nil
	}
	return d
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	if d := h.getOwned(w, r); d != nil {
		writeJSON(w, http.StatusOK, d)
	}
}

func (h *DeliveryHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	d := h.getOwned(w, r)
	if d == nil {
		return
	}

	attempts, err := h.store.ListAttempts(r.Context(), d.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []models.AttemptLog{}
	}
	writeJSON(w, http.StatusOK, attempts)
}
