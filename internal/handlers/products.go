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
	defaultProductPageLimit = 20
	maxProductPageLimit     = 100
	maxProductBodySize      = 64 * 1024
)

type createProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Currency    string   `json:"currency"`
	Stock       int64    `json:"stock"`
	Images      []string `json:"images"`
	Category    string   `json:"category"`
}

type updateProductRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *int64   `json:"price"`
	Images      []string `json:"images"`
	Category    *string  `json:"category"`
	IsActive    *bool    `json:"is_active"`
}

type restockProductRequest struct {
	Quantity int64 `json:"quantity"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

// CatalogHandlers exposes product catalog endpoints for the public browse
// surface and for seller product management.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// PublicRoutes registers the unauthenticated product browse endpoints.
func (h *CatalogHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listPublicProducts)
	r.Get("/products/{productKey}", h.getProduct)
}

// SellerRoutes registers the seller product management endpoints.
func (h *CatalogHandlers) SellerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listSellerProducts)
	r.Post("/", h.createProduct)
	r.Patch("/{productID}", h.updateProduct)
	r.Post("/{productID}/restock", h.restockProduct)
	r.Delete("/{productID}", h.archiveProduct)
}

func (h *CatalogHandlers) listPublicProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultLimit: defaultProductPageLimit,
		MaxLimit:     maxProductPageLimit,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	listQuery := services.ProductListQuery{
		StoreID:    strings.TrimSpace(query.Get("store_id")),
		Category:   strings.TrimSpace(query.Get("category")),
		Search:     strings.TrimSpace(query.Get("search")),
		ActiveOnly: true,
		Pagination: services.Pagination{Page: params.Page, Limit: params.Limit},
	}

	page, err := h.catalog.ListProducts(ctx, listQuery)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildProductPayload))
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	key := strings.TrimSpace(chi.URLParam(r, "productKey"))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id or slug is required", http.StatusBadRequest))
		return
	}

	// IDs carry the prd_ prefix; anything else is treated as a slug.
	var (
		product domain.Product
		err     error
	)
	if strings.HasPrefix(key, "prd_") {
		product, err = h.catalog.GetProduct(ctx, key)
	} else {
		product, err = h.catalog.GetProductBySlug(ctx, key)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	if !product.IsActive {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listSellerProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultLimit: defaultProductPageLimit,
		MaxLimit:     maxProductPageLimit,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	listQuery := services.ProductListQuery{
		SellerID:   actor.UserID,
		Category:   strings.TrimSpace(r.URL.Query().Get("category")),
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		Pagination: services.Pagination{Page: params.Page, Limit: params.Limit},
	}

	page, err := h.catalog.ListProducts(ctx, listQuery)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildProductPayload))
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req createProductRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}

	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		SellerID:    actor.UserID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       domain.Money(req.Price),
		Currency:    strings.TrimSpace(req.Currency),
		Stock:       req.Stock,
		Images:      req.Images,
		Category:    strings.TrimSpace(req.Category),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req updateProductRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}

	cmd := services.UpdateProductCommand{
		ProductID:   productID,
		Actor:       actor,
		Name:        req.Name,
		Description: req.Description,
		Images:      req.Images,
		Category:    req.Category,
		IsActive:    req.IsActive,
	}
	if req.Price != nil {
		price := domain.Money(*req.Price)
		cmd.Price = &price
	}

	product, err := h.catalog.UpdateProduct(ctx, cmd)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) restockProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req restockProductRequest
	if !decodeJSONBody(ctx, w, r, maxProductBodySize, &req) {
		return
	}

	product, err := h.catalog.Restock(ctx, services.RestockCommand{
		ProductID: productID,
		Actor:     actor,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) archiveProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.ArchiveProduct(ctx, services.ArchiveProductCommand{
		ProductID: productID,
		Actor:     actor,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("product_forbidden", "actor may not manage this product", http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogStoreRequired):
		httpx.WriteError(ctx, w, httpx.NewError("store_required", "seller must create a store before listing products", http.StatusConflict))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
