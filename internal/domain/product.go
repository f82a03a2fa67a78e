package domain

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Product is a catalog entry keyed by a case-insensitive SKU that is always
// stored upper-cased.
type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SKU         string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_products_sku" json:"sku"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"not null;index:idx_products_is_active" json:"is_active"`
	CreatedAt   time.Time `gorm:"index:idx_products_created_at" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string {
	return "products"
}

// NormalizeSKU returns the canonical stored form of a SKU.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// BeforeSave keeps every write path on the upper-cased SKU.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	p.SKU = NormalizeSKU(p.SKU)
	return nil
}
