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

const storesCollection = "stores"

type StoreRepository struct {
	provider *pfirestore.Provider
	stores   *pfirestore.BaseRepository[storeDocument]
}

func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	stores := pfirestore.NewBaseRepository[storeDocument](provider, storesCollection)
	return &StoreRepository{provider: provider, stores: stores}, nil
}

func (r *StoreRepository) Insert(ctx context.Context, store domain.Store) error {
	if r == nil || r.provider == nil {
		return errors.New("store repository not initialised")
	}
	ref, err := r.stores.DocumentRef(ctx, store.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newStoreDocument(store)); err != nil {
		return pfirestore.WrapError("stores.insert", err)
	}
	return nil
}

func (r *StoreRepository) Update(ctx context.Context, store domain.Store) error {
	if r == nil || r.provider == nil {
		return errors.New("store repository not initialised")
	}
	// The ledger fields are owned by the guarded mutations below; carry the
	// persisted values forward so a profile update cannot clobber them.
	body := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.stores.DocumentRef(ctx, store.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var current storeDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode store %s: %w", store.ID, err)
		}
		doc := newStoreDocument(store)
		doc.TotalSales = current.TotalSales
		doc.TotalProducts = current.TotalProducts
		doc.Orders = current.Orders
		doc.LedgerKeys = current.LedgerKeys
		doc.CreatedAt = current.CreatedAt
		return pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
			return tx.Set(ref, doc)
		})
	}

	var err error
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = body(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, body)
	}
	if err != nil {
		return pfirestore.WrapError("stores.update", err)
	}
	return nil
}

func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.stores == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	doc, err := r.stores.Get(ctx, storeID)
	if err != nil {
		return domain.Store{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *StoreRepository) FindBySeller(ctx context.Context, sellerID string) (domain.Store, error) {
	return r.findOne(ctx, "sellerId", sellerID)
}

func (r *StoreRepository) FindBySlug(ctx context.Context, slug string) (domain.Store, error) {
	return r.findOne(ctx, "slug", slug)
}

func (r *StoreRepository) findOne(ctx context.Context, field string, value string) (domain.Store, error) {
	if r == nil || r.stores == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Store{}, fmt.Errorf("stores: %s is required", field)
	}
	docs, err := r.stores.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value).Limit(1)
	})
	if err != nil {
		return domain.Store{}, err
	}
	if len(docs) == 0 {
		return domain.Store{}, pfirestore.WrapError("stores.find", status.Error(codes.NotFound, "store not found"))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *StoreRepository) List(ctx context.Context, filter repositories.StoreListFilter) (domain.Page[domain.Store], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Store]{}, errors.New("store repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Store]{}, err
	}

	query := client.Collection(storesCollection).Query
	if len(filter.Verification) == 1 {
		query = query.Where("verificationStatus", "==", string(filter.Verification[0]))
	} else if len(filter.Verification) > 1 {
		values := make([]string, len(filter.Verification))
		for i, v := range filter.Verification {
			values[i] = string(v)
		}
		query = query.Where("verificationStatus", "in", values)
	}
	if filter.ActiveOnly {
		query = query.Where("isActive", "==", true)
	}

	page, limit := normalisePage(filter.Pagination)
	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Store]{}, pfirestore.WrapError("stores.list", err)
	}

	query = query.OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit)
	iter := query.Documents(ctx)
	defer iter.Stop()

	var stores []domain.Store
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Store]{}, pfirestore.WrapError("stores.list", err)
		}
		var doc storeDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Store]{}, fmt.Errorf("decode store %s: %w", snap.Ref.ID, err)
		}
		stores = append(stores, doc.toDomain(snap.Ref.ID))
	}

	return newPage(stores, total, page, limit), nil
}

// RecordFulfilledOrder appends order refs to the store ledger without
// touching sales totals.
func (r *StoreRepository) RecordFulfilledOrder(ctx context.Context, storeID string, refs []domain.StoreOrderRef) error {
	if len(refs) == 0 {
		return nil
	}
	return r.mutateLedger(ctx, "stores.recordOrder", storeID, func(doc *storeDocument) error {
		for _, ref := range refs {
			doc.Orders = append(doc.Orders, newStoreOrderRefDocument(ref))
		}
		return nil
	})
}

// RemoveOrderRefs drops every ledger link for the cancelled order.
func (r *StoreRepository) RemoveOrderRefs(ctx context.Context, storeID string, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return repositories.NewLedgerError(repositories.LedgerErrorUnknown, "order id is required", nil)
	}
	return r.mutateLedger(ctx, "stores.removeOrderRefs", storeID, func(doc *storeDocument) error {
		kept := doc.Orders[:0]
		for _, ref := range doc.Orders {
			if ref.OrderID != orderID {
				kept = append(kept, ref)
			}
		}
		doc.Orders = kept
		return nil
	})
}

// AdjustSales applies a signed delta to the store's total sales. The
// (orderID, key) pair is recorded in the same write, so a replayed
// adjustment fails with a duplicate error instead of double-applying.
func (r *StoreRepository) AdjustSales(ctx context.Context, storeID string, orderID string, key string, delta domain.Money) error {
	orderID = strings.TrimSpace(orderID)
	key = strings.TrimSpace(key)
	if orderID == "" || key == "" {
		return repositories.NewLedgerError(repositories.LedgerErrorUnknown, "order id and adjustment key are required", nil)
	}
	ledgerKey := orderID + ":" + key
	return r.mutateLedger(ctx, "stores.adjustSales", storeID, func(doc *storeDocument) error {
		if doc.LedgerKeys == nil {
			doc.LedgerKeys = map[string]time.Time{}
		}
		if _, applied := doc.LedgerKeys[ledgerKey]; applied {
			return repositories.NewLedgerError(repositories.LedgerErrorDuplicate, fmt.Sprintf("adjustment %s already applied", ledgerKey), nil)
		}
		doc.TotalSales += int64(delta)
		doc.LedgerKeys[ledgerKey] = time.Now().UTC()
		return nil
	})
}

// AdjustProductCount moves the catalog size metric on create/archive.
func (r *StoreRepository) AdjustProductCount(ctx context.Context, storeID string, delta int64) error {
	return r.mutateLedger(ctx, "stores.adjustProductCount", storeID, func(doc *storeDocument) error {
		doc.TotalProducts += delta
		if doc.TotalProducts < 0 {
			doc.TotalProducts = 0
		}
		return nil
	})
}

func (r *StoreRepository) mutateLedger(ctx context.Context, op string, storeID string, apply func(*storeDocument) error) error {
	if r == nil || r.provider == nil {
		return errors.New("store repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return repositories.NewLedgerError(repositories.LedgerErrorUnknown, "store id is required", nil)
	}

	// A unit of work may hit the same store twice, for example recording
	// order refs and then crediting sales. The first mutation reads the
	// document and stages the single write; later mutations reuse the
	// staged copy, keeping every read ahead of the buffered writes.
	body := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.stores.DocumentRef(ctx, storeID)
		if err != nil {
			return err
		}
		var doc *storeDocument
		if cached, ok := pfirestore.StagedDoc(ctx, ref.Path); ok {
			doc = cached.(*storeDocument)
		} else {
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewLedgerError(repositories.LedgerErrorStoreNotFound, fmt.Sprintf("store %s not found", storeID), err)
				}
				return err
			}
			doc = new(storeDocument)
			if err := snap.DataTo(doc); err != nil {
				return fmt.Errorf("decode store %s: %w", storeID, err)
			}
			pfirestore.StageDoc(ctx, ref.Path, doc)
			if err := pfirestore.StageWrite(ctx, func(tx *firestore.Transaction) error {
				doc.UpdatedAt = time.Now().UTC()
				return tx.Set(ref, doc)
			}); err != nil {
				return err
			}
		}
		return apply(doc)
	}

	var err error
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = body(ctx, tx)
	} else {
		err = r.provider.RunTransaction(ctx, body)
	}
	return wrapLedgerError(op, err)
}

// Helper structures ---------------------------------------------------------

type storeDocument struct {
	SellerID           string                  `firestore:"sellerId"`
	Name               string                  `firestore:"name"`
	Slug               string                  `firestore:"slug"`
	Description        string                  `firestore:"description,omitempty"`
	Logo               string                  `firestore:"logo,omitempty"`
	TotalProducts      int64                   `firestore:"totalProducts"`
	TotalSales         int64                   `firestore:"totalSales"`
	AverageRating      float64                 `firestore:"averageRating"`
	TotalReviews       int64                   `firestore:"totalReviews"`
	Orders             []storeOrderRefDocument `firestore:"orders,omitempty"`
	LedgerKeys         map[string]time.Time    `firestore:"ledgerKeys,omitempty"`
	VerificationStatus string                  `firestore:"verificationStatus"`
	IsActive           bool                    `firestore:"isActive"`
	CreatedAt          time.Time               `firestore:"createdAt"`
	UpdatedAt          time.Time               `firestore:"updatedAt"`
}

type storeOrderRefDocument struct {
	OrderID   string `firestore:"orderId"`
	BuyerID   string `firestore:"buyerId"`
	ProductID string `firestore:"productId"`
	Quantity  int64  `firestore:"qty"`
	Amount    int64  `firestore:"amount"`
}

func newStoreDocument(s domain.Store) storeDocument {
	orders := make([]storeOrderRefDocument, len(s.Orders))
	for i, ref := range s.Orders {
		orders[i] = newStoreOrderRefDocument(ref)
	}
	return storeDocument{
		SellerID:           strings.TrimSpace(s.SellerID),
		Name:               strings.TrimSpace(s.Name),
		Slug:               strings.TrimSpace(s.Slug),
		Description:        strings.TrimSpace(s.Description),
		Logo:               strings.TrimSpace(s.Logo),
		TotalProducts:      s.Metrics.TotalProducts,
		TotalSales:         int64(s.Metrics.TotalSales),
		AverageRating:      s.Metrics.AverageRating,
		TotalReviews:       s.Metrics.TotalReviews,
		Orders:             orders,
		VerificationStatus: string(s.VerificationStatus),
		IsActive:           s.IsActive,
		CreatedAt:          s.CreatedAt.UTC(),
		UpdatedAt:          s.UpdatedAt.UTC(),
	}
}

func newStoreOrderRefDocument(ref domain.StoreOrderRef) storeOrderRefDocument {
	return storeOrderRefDocument{
		OrderID:   strings.TrimSpace(ref.OrderID),
		BuyerID:   strings.TrimSpace(ref.BuyerID),
		ProductID: strings.TrimSpace(ref.ProductID),
		Quantity:  ref.Quantity,
		Amount:    int64(ref.Amount),
	}
}

func (d storeDocument) toDomain(id string) domain.Store {
	orders := make([]domain.StoreOrderRef, len(d.Orders))
	for i, ref := range d.Orders {
		orders[i] = domain.StoreOrderRef{
			OrderID:   ref.OrderID,
			BuyerID:   ref.BuyerID,
			ProductID: ref.ProductID,
			Quantity:  ref.Quantity,
			Amount:    domain.Money(ref.Amount),
		}
	}
	return domain.Store{
		ID:          id,
		SellerID:    d.SellerID,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		Logo:        d.Logo,
		Metrics: domain.StoreMetrics{
			TotalProducts: d.TotalProducts,
			TotalSales:    domain.Money(d.TotalSales),
			AverageRating: d.AverageRating,
			TotalReviews:  d.TotalReviews,
		},
		Orders:             orders,
		VerificationStatus: domain.StoreVerification(d.VerificationStatus),
		IsActive:           d.IsActive,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func wrapLedgerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		if ledgerErr.Op == "" {
			ledgerErr.Op = op
		}
		return ledgerErr
	}
	return pfirestore.WrapError(op, err)
}
