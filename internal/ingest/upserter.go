package ingest

import (
	"context"
	"time"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/logger"
)

// DefaultBatchSize is the number of records written per bulk call.
const DefaultBatchSize = 1000

// CatalogStore is the write side of the product catalog.
type CatalogStore interface {
	FindBySKUs(ctx context.Context, skus []string) ([]domain.Product, error)
	BulkCreate(ctx context.Context, products []domain.Product) (int64, error)
	BulkUpdate(ctx context.Context, products []domain.Product) error
	UpsertOne(ctx context.Context, product *domain.Product) (bool, error)
}

// BatchResult accounts for every record of one batch: Written+Failed is
// always the batch length.
type BatchResult struct {
	Written  int
	Failed   int
	Created  int
	Updated  int
	FellBack bool
}

// Upserter writes batches of ProductRecords to the catalog.
type Upserter struct {
	store CatalogStore
}

// NewUpserter creates an Upserter over store.
func NewUpserter(store CatalogStore) *Upserter {
	return &Upserter{store: store}
}

// Write creates or updates every record in batch. A failed bulk attempt
// falls back to per-record upserts; nothing escapes as an error.
func (u *Upserter) Write(ctx context.Context, batch []ProductRecord) BatchResult {
	if len(batch) == 0 {
		return BatchResult{}
	}
	start := time.Now()

	result, err := u.writeBulk(ctx, batch)
	if err == nil {
		logger.With(logger.Fields{
			"created": result.Created,
			"updated": result.Updated,
		}).WithCount(len(batch)).WithDuration(start).Debug(ctx, "Batch written")
		return result
	}

	logger.FromContext(ctx).WithError(&BatchWriteError{Size: len(batch), Err: err}).
		Warn("Bulk write failed, falling back to per-row upserts")
	result = u.writeEach(ctx, batch)
	logger.With(logger.Fields{
		"created": result.Created,
		"updated": result.Updated,
		"failed":  result.Failed,
	}).WithCount(len(batch)).WithDuration(start).Info(ctx, "Batch written row by row")
	return result
}

func (u *Upserter) writeBulk(ctx context.Context, batch []ProductRecord) (BatchResult, error) {
	// Later rows for the same SKU win.
	bySKU := make(map[string]domain.Product, len(batch))
	order := make([]string, 0, len(batch))
	for _, rec := range batch {
		sku := domain.NormalizeSKU(rec.SKU)
		if _, seen := bySKU[sku]; !seen {
			order = append(order, sku)
		}
		bySKU[sku] = toProduct(rec)
	}

	existing, err := u.store.FindBySKUs(ctx, order)
	if err != nil {
		return BatchResult{}, err
	}
	ids := make(map[string]uint, len(existing))
	for _, p := range existing {
		ids[domain.NormalizeSKU(p.SKU)] = p.ID
	}

	var creates, updates []domain.Product
	for _, sku := range order {
		p := bySKU[sku]
		if id, ok := ids[sku]; ok {
			p.ID = id
			updates = append(updates, p)
		} else {
			creates = append(creates, p)
		}
	}

	created, err := u.store.BulkCreate(ctx, creates)
	if err != nil {
		return BatchResult{}, err
	}
	if err := u.store.BulkUpdate(ctx, updates); err != nil {
		return BatchResult{}, err
	}

	return BatchResult{
		Written: len(batch),
		Created: int(created),
		Updated: len(updates),
	}, nil
}

func (u *Upserter) writeEach(ctx context.Context, batch []ProductRecord) BatchResult {
	result := BatchResult{FellBack: true}
	for i, rec := range batch {
		if ctx.Err() != nil {
			result.Failed += len(batch) - i
			break
		}
		p := toProduct(rec)
		created, err := u.store.UpsertOne(ctx, &p)
		if err != nil {
			result.Failed++
			logger.FromContext(ctx).
				WithError(&IndividualWriteError{SKU: p.SKU, Err: err}).
				WithField("line", rec.Line).
				Error("Failed to upsert product")
			continue
		}
		result.Written++
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return result
}

func toProduct(rec ProductRecord) domain.Product {
	return domain.Product{
		SKU:         domain.NormalizeSKU(rec.SKU),
		Name:        rec.Name,
		Description: rec.Description,
		IsActive:    rec.IsActive,
	}
}
