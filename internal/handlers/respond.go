package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/payments"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/auth"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/services"
)

const defaultMaxBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, errors.New("must be RFC3339 timestamp")
}

func actorFromContext(ctx context.Context) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		UserID: strings.TrimSpace(identity.UserID),
		Role:   domain.Role(strings.TrimSpace(identity.Role)),
	}, true
}

// Shared JSON payload shapes ------------------------------------------------

type pagePayload[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

func buildPagePayload[D, P any](page domain.Page[D], build func(D) P) pagePayload[P] {
	items := make([]P, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, build(item))
	}
	return pagePayload[P]{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	}
}

type addressPayload struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		FullName:   addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func addressFromPayload(payload addressPayload) domain.Address {
	return domain.Address{
		FullName:   strings.TrimSpace(payload.FullName),
		Phone:      strings.TrimSpace(payload.Phone),
		Line1:      strings.TrimSpace(payload.Line1),
		Line2:      strings.TrimSpace(payload.Line2),
		City:       strings.TrimSpace(payload.City),
		State:      strings.TrimSpace(payload.State),
		PostalCode: strings.TrimSpace(payload.PostalCode),
		Country:    strings.TrimSpace(payload.Country),
	}
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	StoreID   string `json:"store_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
	Status    string `json:"status"`
}

type orderTotalsPayload struct {
	Currency string `json:"currency"`
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Shipping int64  `json:"shipping"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
	// TotalDisplay is the receipt rendering, e.g. "INR 1,499.00". Amounts
	// stay in minor units; clients that just show a price use this.
	TotalDisplay string `json:"total_display"`
}

type orderPaymentPayload struct {
	Method        string `json:"method"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	GatewayRef    string `json:"gateway_ref,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
	RefundStatus  string `json:"refund_status,omitempty"`
}

type orderShippingPayload struct {
	Address           addressPayload `json:"address"`
	Carrier           string         `json:"carrier,omitempty"`
	TrackingNumber    string         `json:"tracking_number,omitempty"`
	TrackingURL       string         `json:"tracking_url,omitempty"`
	EstimatedDelivery string         `json:"estimated_delivery,omitempty"`
}

type orderNotesPayload struct {
	Buyer  string `json:"buyer,omitempty"`
	Seller string `json:"seller,omitempty"`
	Admin  string `json:"admin,omitempty"`
}

type statusChangePayload struct {
	Status    string `json:"status"`
	ChangedAt string `json:"changed_at"`
	ChangedBy string `json:"changed_by,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type orderPayload struct {
	ID            string                `json:"id"`
	OrderNumber   string                `json:"order_number"`
	BuyerID       string                `json:"buyer_id"`
	Status        string                `json:"status"`
	Items         []orderItemPayload    `json:"items"`
	Totals        orderTotalsPayload    `json:"totals"`
	Payment       orderPaymentPayload   `json:"payment"`
	Shipping      orderShippingPayload  `json:"shipping"`
	Notes         *orderNotesPayload    `json:"notes,omitempty"`
	StatusHistory []statusChangePayload `json:"status_history,omitempty"`
	OrderedAt     string                `json:"ordered_at"`
	DeliveredAt   string                `json:"delivered_at,omitempty"`
	CreatedAt     string                `json:"created_at"`
	UpdatedAt     string                `json:"updated_at,omitempty"`
}

type orderSummaryPayload struct {
	ID           string `json:"id"`
	OrderNumber  string `json:"order_number"`
	BuyerID      string `json:"buyer_id"`
	Status       string `json:"status"`
	Currency     string `json:"currency"`
	Total        int64  `json:"total"`
	TotalDisplay string `json:"total_display"`
	ItemCount    int    `json:"item_count"`
	OrderedAt    string `json:"ordered_at"`
}

func buildOrderSummary(order domain.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:           order.ID,
		OrderNumber:  order.OrderNumber,
		BuyerID:      order.BuyerID,
		Status:       string(order.Status),
		Currency:     strings.ToUpper(order.Totals.Currency),
		Total:        int64(order.Totals.Total),
		TotalDisplay: order.Totals.Total.Display(strings.ToUpper(order.Totals.Currency)),
		ItemCount:    len(order.Items),
		OrderedAt:    formatTime(order.OrderedAt),
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: int64(item.UnitPrice),
			Quantity:  item.Quantity,
			Subtotal:  int64(item.Subtotal),
			Status:    string(item.Status),
		})
	}

	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		Status:      string(order.Status),
		Items:       items,
		Totals: orderTotalsPayload{
			Currency:     strings.ToUpper(order.Totals.Currency),
			Subtotal:     int64(order.Totals.Subtotal),
			Discount:     int64(order.Totals.Discount),
			Shipping:     int64(order.Totals.Shipping),
			Tax:          int64(order.Totals.Tax),
			Total:        int64(order.Totals.Total),
			TotalDisplay: order.Totals.Total.Display(strings.ToUpper(order.Totals.Currency)),
		},
		Payment: orderPaymentPayload{
			Method:        string(order.Payment.Method),
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			GatewayRef:    order.Payment.GatewayRef,
			PaidAt:        formatTime(pointerTime(order.Payment.PaidAt)),
			RefundStatus:  string(order.Payment.RefundStatus),
		},
		Shipping: orderShippingPayload{
			Address:           buildAddressPayload(order.Shipping.Address),
			Carrier:           order.Shipping.Carrier,
			TrackingNumber:    order.Shipping.TrackingNumber,
			TrackingURL:       order.Shipping.TrackingURL,
			EstimatedDelivery: formatTime(pointerTime(order.Shipping.EstimatedDelivery)),
		},
		OrderedAt:   formatTime(order.OrderedAt),
		DeliveredAt: formatTime(pointerTime(order.DeliveredAt)),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}

	if order.Notes != (domain.OrderNotes{}) {
		payload.Notes = &orderNotesPayload{
			Buyer:  order.Notes.Buyer,
			Seller: order.Notes.Seller,
			Admin:  order.Notes.Admin,
		}
	}

	if len(order.StatusHistory) > 0 {
		history := make([]statusChangePayload, 0, len(order.StatusHistory))
		for _, change := range order.StatusHistory {
			history = append(history, statusChangePayload{
				Status:    string(change.Status),
				ChangedAt: formatTime(change.ChangedAt),
				ChangedBy: change.ChangedBy,
				Notes:     change.Notes,
			})
		}
		payload.StatusHistory = history
	}

	return payload
}

type checkoutPayload struct {
	Provider      string            `json:"provider"`
	TransactionID string            `json:"transaction_id"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	FormFields    map[string]string `json:"form_fields,omitempty"`
	Confirmed     bool              `json:"confirmed"`
	ExpiresAt     string            `json:"expires_at,omitempty"`
}

func buildCheckoutPayload(checkout payments.Checkout) checkoutPayload {
	return checkoutPayload{
		Provider:      checkout.Provider,
		TransactionID: checkout.TransactionID,
		RedirectURL:   checkout.RedirectURL,
		FormFields:    checkout.FormFields,
		Confirmed:     checkout.Confirmed,
		ExpiresAt:     formatTime(checkout.ExpiresAt),
	}
}

type productRatingPayload struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

type productPayload struct {
	ID          string               `json:"id"`
	SellerID    string               `json:"seller_id"`
	StoreID     string               `json:"store_id"`
	Name        string               `json:"name"`
	Slug        string               `json:"slug"`
	Description string               `json:"description,omitempty"`
	Price       int64                `json:"price"`
	Currency    string               `json:"currency"`
	Stock       int64                `json:"stock"`
	Images      []string             `json:"images,omitempty"`
	Category    string               `json:"category,omitempty"`
	IsActive    bool                 `json:"is_active"`
	Rating      productRatingPayload `json:"rating"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		SellerID:    product.SellerID,
		StoreID:     product.StoreID,
		Name:        product.Name,
		Slug:        product.Slug,
		Description: product.Description,
		Price:       int64(product.Price),
		Currency:    strings.ToUpper(product.Currency),
		Stock:       product.Stock,
		Images:      product.Images,
		Category:    product.Category,
		IsActive:    product.IsActive,
		Rating: productRatingPayload{
			Average: product.Rating.Average,
			Count:   product.Rating.Count,
		},
		CreatedAt: formatTime(product.CreatedAt),
		UpdatedAt: formatTime(product.UpdatedAt),
	}
}

type storeMetricsPayload struct {
	TotalProducts int64   `json:"total_products"`
	TotalSales    int64   `json:"total_sales"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int64   `json:"total_reviews"`
}

type storePayload struct {
	ID                 string              `json:"id"`
	SellerID           string              `json:"seller_id"`
	Name               string              `json:"name"`
	Slug               string              `json:"slug"`
	Description        string              `json:"description,omitempty"`
	Logo               string              `json:"logo,omitempty"`
	Metrics            storeMetricsPayload `json:"metrics"`
	VerificationStatus string              `json:"verification_status"`
	IsActive           bool                `json:"is_active"`
	CreatedAt          string              `json:"created_at"`
	UpdatedAt          string              `json:"updated_at,omitempty"`
}

func buildStorePayload(store domain.Store) storePayload {
	return storePayload{
		ID:          store.ID,
		SellerID:    store.SellerID,
		Name:        store.Name,
		Slug:        store.Slug,
		Description: store.Description,
		Logo:        store.Logo,
		Metrics: storeMetricsPayload{
			TotalProducts: store.Metrics.TotalProducts,
			TotalSales:    int64(store.Metrics.TotalSales),
			AverageRating: store.Metrics.AverageRating,
			TotalReviews:  store.Metrics.TotalReviews,
		},
		VerificationStatus: string(store.VerificationStatus),
		IsActive:           store.IsActive,
		CreatedAt:          formatTime(store.CreatedAt),
		UpdatedAt:          formatTime(store.UpdatedAt),
	}
}

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	AddedAt   string `json:"added_at,omitempty"`
}

type cartPayload struct {
	ID        string            `json:"id,omitempty"`
	BuyerID   string            `json:"buyer_id"`
	Items     []cartItemPayload `json:"items"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   formatTime(item.AddedAt),
		})
	}
	return cartPayload{
		ID:        cart.ID,
		BuyerID:   cart.BuyerID,
		Items:     items,
		UpdatedAt: formatTime(cart.UpdatedAt),
	}
}
