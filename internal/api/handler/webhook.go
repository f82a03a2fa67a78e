package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/service"
)

// WebhookHandler handles webhook subscription endpoints.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// List handles GET /api/v1/webhooks.
func (h *WebhookHandler) List(c *gin.Context) {
	hooks, err := h.webhooks.List(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list webhooks")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       hooks,
		"total":       len(hooks),
		"event_types": domain.EventTypes,
	})
}

// Get handles GET /api/v1/webhooks/:id.
func (h *WebhookHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	hook, err := h.webhooks.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get webhook")
		return
	}
	c.JSON(http.StatusOK, hook)
}

// Create handles POST /api/v1/webhooks.
func (h *WebhookHandler) Create(c *gin.Context) {
	var in service.WebhookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	hook, err := h.webhooks.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "Failed to create webhook")
		return
	}
	c.JSON(http.StatusCreated, hook)
}

// Update handles PUT /api/v1/webhooks/:id.
func (h *WebhookHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in service.WebhookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	hook, err := h.webhooks.Update(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err, "Failed to update webhook")
		return
	}
	c.JSON(http.StatusOK, hook)
}

// Delete handles DELETE /api/v1/webhooks/:id.
func (h *WebhookHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.webhooks.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete webhook")
		return
	}
	c.Status(http.StatusNoContent)
}

// Test handles POST /api/v1/webhooks/:id/test. A delivery that reaches the
// endpoint but gets a non-success status is still a 200 with success=false.
func (h *WebhookHandler) Test(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result, err := h.webhooks.Test(c.Request.Context(), id)
	if err != nil && result.Error == "" {
		respondError(c, err, "Failed to test webhook")
		return
	}

	status := http.StatusOK
	if result.Error != "" {
		// The endpoint could not be reached at all.
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"success":          result.Success,
		"status_code":      result.StatusCode,
		"response_time_ms": result.ResponseTime.Milliseconds(),
		"error":            result.Error,
	})
}
