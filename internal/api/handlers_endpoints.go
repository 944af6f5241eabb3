package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hookrelay/hookrelay/internal/delivery"
	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/registry"
	"github.com/hookrelay/hookrelay/internal/storage"
)

type EndpointHandler struct {
	store    storage.Storage
	registry *registry.Registry
	health   *delivery.HealthService
}

func NewEndpointHandler(store storage.Storage, reg *registry.Registry, health *delivery.HealthService) *EndpointHandler {
	return &EndpointHandler{store: store, registry: reg, health: health}
}

// Create registers an endpoint. The response is the only place the signing
// secret ever appears.
func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registry.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.registry.Register(r.Context(), tenant.ID, req)
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	eps, err := h.store.ListEndpoints(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}
	if eps == nil {
		eps = []models.Endpoint{}
	}
	for i := range eps {
		eps[i].Secret = ""
	}
	writeJSON(w, http.StatusOK, eps)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ep, err := h.registry.Get(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registry.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.registry.Update(r.Context(), tenant.ID, chi.URLParam(r, "id"), req)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.registry.Deactivate(r.Context(), tenant.ID, chi.URLParam(r, "id")); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) Health(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ep, err := h.registry.Get(r.Context(), tenant.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}

	report, err := h.health.Report(r.Context(), ep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build health report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
