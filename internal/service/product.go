package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/events"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/repository"
)

const maxSKULength = 100

// ProductInput is the writable part of a product.
type ProductInput struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (in ProductInput) validate() error {
	sku := strings.TrimSpace(in.SKU)
	switch {
	case sku == "":
		return fmt.Errorf("%w: sku is required", ErrInvalidInput)
	case len(sku) > maxSKULength:
		return fmt.Errorf("%w: sku must be at most %d characters", ErrInvalidInput, maxSKULength)
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	return nil
}

// ProductService manages catalog entries outside of file imports and
// announces every change.
type ProductService struct {
	products  *repository.ProductRepository
	publisher events.Publisher
}

// NewProductService creates a new ProductService.
func NewProductService(products *repository.ProductRepository, publisher events.Publisher) *ProductService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &ProductService{products: products, publisher: publisher}
}

// List returns a filtered page of products and the total match count.
func (s *ProductService) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int64, error) {
	return s.products.List(ctx, filter)
}

// Get returns a product by id.
func (s *ProductService) Get(ctx context.Context, id uint) (*domain.Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Create adds a product; the SKU must not exist in any letter case.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureSKUFree(ctx, in.SKU, 0); err != nil {
		return nil, err
	}

	p := &domain.Product{
		SKU:         in.SKU,
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := s.products.Create(ctx, p); err != nil {
		// Lost a race with a concurrent create of the same SKU.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, p.SKU)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	logger.FromContext(ctx).WithField("sku", p.SKU).Info("Product created")
	s.publisher.Publish(ctx, domain.EventProductCreated, p)
	return p, nil
}

// Update overwrites a product's fields. IsActive is kept when omitted.
func (s *ProductService) Update(ctx context.Context, id uint, in ProductInput) (*domain.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSKUFree(ctx, in.SKU, id); err != nil {
		return nil, err
	}

	p.SKU = in.SKU
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.products.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: sku %s already exists", ErrConflict, p.SKU)
		}
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.publisher.Publish(ctx, domain.EventProductUpdated, p)
	return p, nil
}

// Delete removes a product.
func (s *ProductService) Delete(ctx context.Context, id uint) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.publisher.Publish(ctx, domain.EventProductDeleted, map[string]interface{}{
		"id":  p.ID,
		"sku": p.SKU,
	})
	return nil
}

// DeleteAll removes every product and returns how many were removed.
func (s *ProductService) DeleteAll(ctx context.Context) (int64, error) {
	count, err := s.products.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}

	logger.With(logger.Fields{logger.FieldCount: count}).Warn(ctx, "All products deleted")
	s.publisher.Publish(ctx, domain.EventAllProductsDeleted, map[string]interface{}{
		"count": count,
	})
	return count, nil
}

// ensureSKUFree rejects sku when another product (not exceptID) already uses it.
func (s *ProductService) ensureSKUFree(ctx context.Context, sku string, exceptID uint) error {
	existing, err := s.products.FindBySKUs(ctx, []string{sku})
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.ID != exceptID {
			return fmt.Errorf("%w: sku %s already exists", ErrConflict, domain.NormalizeSKU(sku))
		}
	}
	return nil
}
