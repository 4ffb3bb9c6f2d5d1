package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

func normalisePage(p domain.Pagination) (page int, limit int) {
	page = p.Page
	if page < 1 {
		page = 1
	}
	limit = p.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// countDocuments runs a server-side count aggregation for the query.
func countDocuments(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, err
	}
	raw, ok := results["total"]
	if !ok {
		return 0, errors.New("firestore: count aggregation missing result")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, errors.New("firestore: unexpected count aggregation type")
	}
	return value.GetIntegerValue(), nil
}

func newPage[T any](items []T, total int64, page int, limit int) domain.Page[T] {
	totalPages := int(total) / limit
	if int(total)%limit != 0 {
		totalPages++
	}
	return domain.Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}
