package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/prodimport/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository handles catalog persistence. Stored SKUs are upper-cased
// by domain.Product.BeforeSave, so lookups normalize their input the same way
// and stay on idx_products_sku.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ProductFilter narrows List results. Empty fields do not filter.
type ProductFilter struct {
	SKU      string // case-insensitive substring
	Name     string // case-insensitive substring
	IsActive *bool
	Limit    int
	Offset   int
}

// FindBySKUs returns products whose SKU matches any of skus, ignoring case.
func (r *ProductRepository) FindBySKUs(ctx context.Context, skus []string) ([]domain.Product, error) {
	if len(skus) == 0 {
		return []domain.Product{}, nil
	}
	normalized := make([]string, len(skus))
	for i, sku := range skus {
		normalized[i] = domain.NormalizeSKU(sku)
	}

	var products []domain.Product
	if err := r.db.WithContext(ctx).Where("sku IN ?", normalized).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to find products by sku: %w", err)
	}
	return products, nil
}

// BulkCreate inserts products in one statement, skipping rows whose SKU
// already exists. It returns the number of rows actually inserted.
func (r *ProductRepository) BulkCreate(ctx context.Context, products []domain.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&products)
	if result.Error != nil {
		return 0, fmt.Errorf("bulk create failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// BulkUpdate rewrites name, description and is_active for existing products
// (matched by ID) in a single UPDATE statement.
func (r *ProductRepository) BulkUpdate(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]uint, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("id IN ?", ids).
		UpdateColumns(map[string]interface{}{
			"name":        caseByID(products, func(p domain.Product) interface{} { return p.Name }),
			"description": caseByID(products, func(p domain.Product) interface{} { return p.Description }),
			"is_active":   caseByID(products, func(p domain.Product) interface{} { return p.IsActive }),
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("bulk update failed: %w", err)
	}
	return nil
}

// caseByID builds "CASE id WHEN ? THEN ? ... END" selecting value(p) per row.
func caseByID(products []domain.Product, value func(domain.Product) interface{}) clause.Expr {
	var sql strings.Builder
	args := make([]interface{}, 0, 2*len(products))
	sql.WriteString("CASE id")
	for _, p := range products {
		sql.WriteString(" WHEN ? THEN ?")
		args = append(args, p.ID, value(p))
	}
	sql.WriteString(" END")
	return gorm.Expr(sql.String(), args...)
}

// UpsertOne creates the product or updates the one with the same SKU
// (ignoring case). It reports whether a new row was created.
func (r *ProductRepository) UpsertOne(ctx context.Context, p *domain.Product) (bool, error) {
	sku := domain.NormalizeSKU(p.SKU)

	var existing domain.Product
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&existing).Error
	switch {
	case err == nil:
		if err := r.db.WithContext(ctx).Model(&domain.Product{}).
			Where("id = ?", existing.ID).
			UpdateColumns(map[string]interface{}{
				"name":        p.Name,
				"description": p.Description,
				"is_active":   p.IsActive,
				"updated_at":  time.Now(),
			}).Error; err != nil {
			return false, fmt.Errorf("failed to update product %s: %w", sku, err)
		}
		p.ID = existing.ID
		return false, nil
	case translate(err) != ErrNotFound:
		return false, fmt.Errorf("failed to look up product %s: %w", sku, err)
	}

	// Another writer may insert the same SKU between the lookup and here.
	p.SKU = sku
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "is_active", "updated_at"}),
	}).Create(p).Error; err != nil {
		return false, fmt.Errorf("failed to create product %s: %w", sku, err)
	}
	return true, nil
}

// List returns a page of products matching filter plus the total match count.
func (r *ProductRepository) List(ctx context.Context, filter ProductFilter) ([]domain.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Product{})
	if filter.SKU != "" {
		query = query.Where("sku LIKE ?", "%"+domain.NormalizeSKU(filter.SKU)+"%")
	}
	if filter.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var products []domain.Product
	if err := query.Order("id ASC").Limit(filter.Limit).Offset(filter.Offset).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetByID retrieves a product by ID.
func (r *ProductRepository) GetByID(ctx context.Context, id uint) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

// Create inserts a new product. A taken SKU yields ErrDuplicate.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Update saves all fields of an existing product. A taken SKU yields ErrDuplicate.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Delete removes a product by ID.
func (r *ProductRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&domain.Product{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every product and returns how many were deleted.
func (r *ProductRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Product{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete products: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Count returns the number of products.
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
