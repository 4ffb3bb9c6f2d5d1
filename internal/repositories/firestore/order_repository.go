package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
	pfirestore "github.com/Abdullah-Zzz/live-shopping-backend/internal/platform/firestore"
	"github.com/Abdullah-Zzz/live-shopping-backend/internal/repositories"
)

const ordersCollection = "orders"

type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		// Staged so reads issued later in the unit of work stay legal.
		return pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
		})
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
		})
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return err
	}
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
			return pfirestore.WrapError("orders.delete", tx.Delete(ref))
		})
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.find", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
		}
		return doc.toDomain(orderID), nil
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByTransactionID(ctx context.Context, txnID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	txnID = strings.TrimSpace(txnID)
	if txnID == "" {
		return domain.Order{}, errors.New("orders: transaction id is required")
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.transactionId", "==", txnID).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByTxn", status.Error(codes.NotFound, "order not found"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	query := client.Collection(ordersCollection).Query
	if buyerID := strings.TrimSpace(filter.BuyerID); buyerID != "" {
		query = query.Where("buyerId", "==", buyerID)
	}
	if sellerID := strings.TrimSpace(filter.SellerID); sellerID != "" {
		query = query.Where("sellerIds", "array-contains", sellerID)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", string(filter.Status[0]))
	} else if len(filter.Status) > 1 {
		values := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			values[i] = string(s)
		}
		query = query.Where("status", "in", values)
	}
	if len(filter.PaymentStatus) == 1 {
		query = query.Where("payment.status", "==", string(filter.PaymentStatus[0]))
	}
	if filter.OrderedAt.From != nil {
		query = query.Where("orderedAt", ">=", filter.OrderedAt.From.UTC())
	}
	if filter.OrderedAt.To != nil {
		query = query.Where("orderedAt", "<=", filter.OrderedAt.To.UTC())
	}

	page, limit := normalisePage(filter.Pagination)
	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
	}

	sortField := orderSortField(filter.SortBy)
	direction := firestore.Desc
	if filter.SortOrder == domain.SortAsc {
		direction = firestore.Asc
	}
	query = query.OrderBy(sortField, direction).Offset((page - 1) * limit).Limit(limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	return newPage(orders, total, page, limit), nil
}

func orderSortField(sortBy string) string {
	switch strings.TrimSpace(sortBy) {
	case "deliveredAt":
		return "deliveredAt"
	case "totalAmount":
		return "totals.total"
	default:
		return "orderedAt"
	}
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	OrderNumber   string                 `firestore:"orderNumber"`
	BuyerID       string                 `firestore:"buyerId"`
	SellerIDs     []string               `firestore:"sellerIds"`
	Items         []orderItemDocument    `firestore:"items"`
	Totals        orderTotalsDocument    `firestore:"totals"`
	Status        string                 `firestore:"status"`
	StatusHistory []statusChangeDocument `firestore:"statusHistory,omitempty"`
	Payment       paymentInfoDocument    `firestore:"payment"`
	Shipping      shippingDocument       `firestore:"shipping"`
	Notes         orderNotesDocument     `firestore:"notes"`
	Flags         orderFlagsDocument     `firestore:"flags"`
	StockReserved bool                   `firestore:"stockReserved"`
	OrderedAt     time.Time              `firestore:"orderedAt"`
	DeliveredAt   *time.Time             `firestore:"deliveredAt,omitempty"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	SellerID  string `firestore:"sellerId"`
	StoreID   string `firestore:"storeId"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image,omitempty"`
	UnitPrice int64  `firestore:"unitPrice"`
	Quantity  int64  `firestore:"qty"`
	Subtotal  int64  `firestore:"subtotal"`
	Status    string `firestore:"status"`
}

type orderTotalsDocument struct {
	Currency string `firestore:"currency"`
	Subtotal int64  `firestore:"subtotal"`
	Discount int64  `firestore:"discount"`
	Shipping int64  `firestore:"shipping"`
	Tax      int64  `firestore:"tax"`
	Total    int64  `firestore:"total"`
}

type statusChangeDocument struct {
	Status    string    `firestore:"status"`
	ChangedAt time.Time `firestore:"changedAt"`
	ChangedBy string    `firestore:"changedBy"`
	Notes     string    `firestore:"notes,omitempty"`
}

type paymentInfoDocument struct {
	Method        string     `firestore:"method"`
	Status        string     `firestore:"status"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	GatewayRef    string     `firestore:"gatewayRef,omitempty"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
	RefundStatus  string     `firestore:"refundStatus"`
}

type shippingDocument struct {
	Address           addressDocument `firestore:"address"`
	Carrier           string          `firestore:"carrier,omitempty"`
	TrackingNumber    string          `firestore:"trackingNumber,omitempty"`
	TrackingURL       string          `firestore:"trackingUrl,omitempty"`
	EstimatedDelivery *time.Time      `firestore:"estimatedDelivery,omitempty"`
}

type addressDocument struct {
	FullName   string `firestore:"fullName"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderNotesDocument struct {
	Buyer  string `firestore:"buyer,omitempty"`
	Seller string `firestore:"seller,omitempty"`
	Admin  string `firestore:"admin,omitempty"`
}

type orderFlagsDocument struct {
	RequiresAttention bool `firestore:"requiresAttention"`
	Priority          int  `firestore:"priority"`
	IsFraud           bool `firestore:"isFraud"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, len(o.Items))
	sellerSet := make(map[string]struct{}, len(o.Items))
	var sellerIDs []string
	for i, item := range o.Items {
		items[i] = orderItemDocument{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: int64(item.UnitPrice),
			Quantity:  item.Quantity,
			Subtotal:  int64(item.Subtotal),
			Status:    string(item.Status),
		}
		if _, seen := sellerSet[item.SellerID]; !seen && item.SellerID != "" {
			sellerSet[item.SellerID] = struct{}{}
			sellerIDs = append(sellerIDs, item.SellerID)
		}
	}

	history := make([]statusChangeDocument, len(o.StatusHistory))
	for i, change := range o.StatusHistory {
		history[i] = statusChangeDocument{
			Status:    string(change.Status),
			ChangedAt: change.ChangedAt.UTC(),
			ChangedBy: change.ChangedBy,
			Notes:     change.Notes,
		}
	}

	return orderDocument{
		OrderNumber: strings.TrimSpace(o.OrderNumber),
		BuyerID:     strings.TrimSpace(o.BuyerID),
		SellerIDs:   sellerIDs,
		Items:       items,
		Totals: orderTotalsDocument{
			Currency: o.Totals.Currency,
			Subtotal: int64(o.Totals.Subtotal),
			Discount: int64(o.Totals.Discount),
			Shipping: int64(o.Totals.Shipping),
			Tax:      int64(o.Totals.Tax),
			Total:    int64(o.Totals.Total),
		},
		Status:        string(o.Status),
		StatusHistory: history,
		Payment: paymentInfoDocument{
			Method:        string(o.Payment.Method),
			Status:        string(o.Payment.Status),
			TransactionID: o.Payment.TransactionID,
			GatewayRef:    o.Payment.GatewayRef,
			PaidAt:        o.Payment.PaidAt,
			RefundStatus:  string(o.Payment.RefundStatus),
		},
		Shipping: shippingDocument{
			Address: addressDocument{
				FullName:   o.Shipping.Address.FullName,
				Phone:      o.Shipping.Address.Phone,
				Line1:      o.Shipping.Address.Line1,
				Line2:      o.Shipping.Address.Line2,
				City:       o.Shipping.Address.City,
				State:      o.Shipping.Address.State,
				PostalCode: o.Shipping.Address.PostalCode,
				Country:    o.Shipping.Address.Country,
			},
			Carrier:           o.Shipping.Carrier,
			TrackingNumber:    o.Shipping.TrackingNumber,
			TrackingURL:       o.Shipping.TrackingURL,
			EstimatedDelivery: o.Shipping.EstimatedDelivery,
		},
		Notes: orderNotesDocument{
			Buyer:  o.Notes.Buyer,
			Seller: o.Notes.Seller,
			Admin:  o.Notes.Admin,
		},
		Flags: orderFlagsDocument{
			RequiresAttention: o.Flags.RequiresAttention,
			Priority:          o.Flags.Priority,
			IsFraud:           o.Flags.IsFraud,
		},
		StockReserved: o.StockReserved,
		OrderedAt:     o.OrderedAt.UTC(),
		DeliveredAt:   o.DeliveredAt,
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			StoreID:   item.StoreID,
			Name:      item.Name,
			Image:     item.Image,
			UnitPrice: domain.Money(item.UnitPrice),
			Quantity:  item.Quantity,
			Subtotal:  domain.Money(item.Subtotal),
			Status:    domain.OrderStatus(item.Status),
		}
	}

	history := make([]domain.StatusChange, len(d.StatusHistory))
	for i, change := range d.StatusHistory {
		history[i] = domain.StatusChange{
			Status:    domain.OrderStatus(change.Status),
			ChangedAt: change.ChangedAt,
			ChangedBy: change.ChangedBy,
			Notes:     change.Notes,
		}
	}

	return domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		BuyerID:     d.BuyerID,
		Items:       items,
		Totals: domain.OrderTotals{
			Currency: d.Totals.Currency,
			Subtotal: domain.Money(d.Totals.Subtotal),
			Discount: domain.Money(d.Totals.Discount),
			Shipping: domain.Money(d.Totals.Shipping),
			Tax:      domain.Money(d.Totals.Tax),
			Total:    domain.Money(d.Totals.Total),
		},
		Status:        domain.OrderStatus(d.Status),
		StatusHistory: history,
		Payment: domain.PaymentInfo{
			Method:        domain.PaymentMethod(d.Payment.Method),
			Status:        domain.PaymentStatus(d.Payment.Status),
			TransactionID: d.Payment.TransactionID,
			GatewayRef:    d.Payment.GatewayRef,
			PaidAt:        d.Payment.PaidAt,
			RefundStatus:  domain.RefundStatus(d.Payment.RefundStatus),
		},
		Shipping: domain.ShippingDetails{
			Address: domain.Address{
				FullName:   d.Shipping.Address.FullName,
				Phone:      d.Shipping.Address.Phone,
				Line1:      d.Shipping.Address.Line1,
				Line2:      d.Shipping.Address.Line2,
				City:       d.Shipping.Address.City,
				State:      d.Shipping.Address.State,
				PostalCode: d.Shipping.Address.PostalCode,
				Country:    d.Shipping.Address.Country,
			},
			Carrier:           d.Shipping.Carrier,
			TrackingNumber:    d.Shipping.TrackingNumber,
			TrackingURL:       d.Shipping.TrackingURL,
			EstimatedDelivery: d.Shipping.EstimatedDelivery,
		},
		Notes: domain.OrderNotes{
			Buyer:  d.Notes.Buyer,
			Seller: d.Notes.Seller,
			Admin:  d.Notes.Admin,
		},
		Flags: domain.OrderFlags{
			RequiresAttention: d.Flags.RequiresAttention,
			Priority:          d.Flags.Priority,
			IsFraud:           d.Flags.IsFraud,
		},
		StockReserved: d.StockReserved,
		OrderedAt:     d.OrderedAt,
		DeliveredAt:   d.DeliveredAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
