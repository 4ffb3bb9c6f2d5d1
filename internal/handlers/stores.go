package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/httpx"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/pagination"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/services"
)

const (
	defaultStorePageLimit = 20
	maxStorePageLimit     = 100
	maxStoreBodySize      = 64 * 1024
)

var validStoreVerifications = map[domain.StoreVerification]struct{}{
	domain.StoreVerificationPending:  {},
	domain.StoreVerificationVerified: {},
	domain.StoreVerificationRejected: {},
}

type createStoreRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Logo        string `json:"logo"`
}

type updateStoreRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Logo        *string `json:"logo"`
}

type storeVerificationRequest struct {
	Status string `json:"status"`
}

type storeActivationRequest struct {
	Active bool `json:"active"`
}

type storeResponse struct {
	Store storePayload `json:"store"`
}

type storePageResponse struct {
	Store    storePayload     `json:"store"`
	Products []productPayload `json:"products"`
}

// StoreHandlers exposes storefront endpoints for sellers, admins, and the
// public storefront page.
type StoreHandlers struct {
	stores services.StoreService
}

// NewStoreHandlers constructs a new StoreHandlers instance.
func NewStoreHandlers(stores services.StoreService) *StoreHandlers {
	return &StoreHandlers{stores: stores}
}

// PublicRoutes registers the unauthenticated storefront endpoints.
func (h *StoreHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/stores/{storeSlug}", h.getStorePage)
}

// SellerRoutes registers the seller store management endpoints.
func (h *StoreHandlers) SellerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getMyStore)
	r.Post("/", h.createStore)
	r.Patch("/", h.updateStore)
}

// AdminRoutes registers the admin store oversight endpoints.
func (h *StoreHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listStores)
	r.Post("/{storeID}/verification", h.setVerification)
	r.Post("/{storeID}/activation", h.setActivation)
}

func (h *StoreHandlers) getStorePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	slug := strings.TrimSpace(chi.URLParam(r, "storeSlug"))
	if slug == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store slug is required", http.StatusBadRequest))
		return
	}

	page, err := h.stores.GetStorePage(ctx, slug)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	products := make([]productPayload, 0, len(page.Products))
	for _, product := range page.Products {
		products = append(products, buildProductPayload(product))
	}

	writeJSONResponse(w, http.StatusOK, storePageResponse{
		Store:    buildStorePayload(page.Store),
		Products: products,
	})
}

func (h *StoreHandlers) getMyStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	store, err := h.stores.GetMyStore(ctx, actor.UserID)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, storeResponse{Store: buildStorePayload(store)})
}

func (h *StoreHandlers) createStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req createStoreRequest
	if !decodeJSONBody(ctx, w, r, maxStoreBodySize, &req) {
		return
	}

	store, err := h.stores.CreateStore(ctx, services.CreateStoreCommand{
		SellerID:    actor.UserID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Logo:        strings.TrimSpace(req.Logo),
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, storeResponse{Store: buildStorePayload(store)})
}

func (h *StoreHandlers) updateStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req updateStoreRequest
	if !decodeJSONBody(ctx, w, r, maxStoreBodySize, &req) {
		return
	}

	store, err := h.stores.UpdateStore(ctx, services.UpdateStoreCommand{
		SellerID:    actor.UserID,
		Name:        req.Name,
		Description: req.Description,
		Logo:        req.Logo,
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, storeResponse{Store: buildStorePayload(store)})
}

func (h *StoreHandlers) listStores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultLimit: defaultStorePageLimit,
		MaxLimit:     maxStorePageLimit,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.StoreListQuery{
		ActiveOnly: strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("active_only")), "true"),
		Pagination: services.Pagination{Page: params.Page, Limit: params.Limit},
	}

	for _, raw := range parseFilterValues(r.URL.Query()["verification"]) {
		status := domain.StoreVerification(raw)
		if _, ok := validStoreVerifications[status]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "verification must be a valid verification status", http.StatusBadRequest))
			return
		}
		query.Verification = append(query.Verification, status)
	}

	page, err := h.stores.ListStores(ctx, query)
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildStorePayload))
}

func (h *StoreHandlers) setVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store id is required", http.StatusBadRequest))
		return
	}

	var req storeVerificationRequest
	if !decodeJSONBody(ctx, w, r, maxStoreBodySize, &req) {
		return
	}

	status := domain.StoreVerification(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != domain.StoreVerificationVerified && status != domain.StoreVerificationRejected {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be verified or rejected", http.StatusBadRequest))
		return
	}

	store, err := h.stores.SetVerification(ctx, services.StoreVerificationCommand{
		StoreID: storeID,
		Actor:   actor,
		Status:  status,
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, storeResponse{Store: buildStorePayload(store)})
}

func (h *StoreHandlers) setActivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stores == nil {
		httpx.WriteError(ctx, w, httpx.NewError("store_service_unavailable", "store service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	storeID := strings.TrimSpace(chi.URLParam(r, "storeID"))
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "store id is required", http.StatusBadRequest))
		return
	}

	var req storeActivationRequest
	if !decodeJSONBody(ctx, w, r, maxStoreBodySize, &req) {
		return
	}

	store, err := h.stores.SetActive(ctx, services.StoreActivationCommand{
		StoreID: storeID,
		Actor:   actor,
		Active:  req.Active,
	})
	if err != nil {
		writeStoreError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, storeResponse{Store: buildStorePayload(store)})
}

func writeStoreError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrStoreInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStoreNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("store_not_found", "store not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStoreForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("store_forbidden", "actor may not manage this store", http.StatusForbidden))
	case errors.Is(err, services.ErrStoreExists):
		httpx.WriteError(ctx, w, httpx.NewError("store_exists", "seller already has a store", http.StatusConflict))
	case errors.Is(err, services.ErrStoreConflict):
		httpx.WriteError(ctx, w, httpx.NewError("store_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("store_error", "failed to process store request", http.StatusInternalServerError))
	}
}
