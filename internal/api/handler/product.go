package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/prodimport/internal/repository"
	"github.com/timmy/prodimport/internal/service"
)

// ProductHandler handles catalog CRUD endpoints.
type ProductHandler struct {
	products *service.ProductService
}

// NewProductHandler creates a new product handler.
func NewProductHandler(products *service.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List handles GET /api/v1/products.
// Query parameters sku and name match case-insensitive substrings; is_active
// matches "true" exactly (any other value means inactive).
func (h *ProductHandler) List(c *gin.Context) {
	limit, offset := page(c)
	filter := repository.ProductFilter{
		SKU:    c.Query("sku"),
		Name:   c.Query("name"),
		Limit:  limit,
		Offset: offset,
	}
	if raw, ok := c.GetQuery("is_active"); ok {
		active := strings.EqualFold(raw, "true")
		filter.IsActive = &active
	}

	items, total, err := h.products.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /api/v1/products/:id.
func (h *ProductHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	p, err := h.products.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get product")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create handles POST /api/v1/products.
func (h *ProductHandler) Create(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	p, err := h.products.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Failed to create product")
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update handles PUT /api/v1/products/:id.
func (h *ProductHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	p, err := h.products.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err, "Failed to update product")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /api/v1/products/:id.
func (h *ProductHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.products.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete product")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/v1/products/bulk-delete.
func (h *ProductHandler) DeleteAll(c *gin.Context) {
	count, err := h.products.DeleteAll(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to delete products")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Successfully deleted %d products", count),
		"count":   count,
	})
}
