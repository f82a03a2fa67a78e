package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/prodimport/internal/api/middleware"
	"github.com/timmy/prodimport/internal/logger"
	"github.com/timmy/prodimport/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// respondError maps service errors to HTTP status codes. Anything unknown is
// logged and reported as a 500 with the given summary.
func respondError(c *gin.Context, err error, summary string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict), errors.Is(err, service.ErrJobNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		middleware.GetLogger(c).WithError(err).Error(summary)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      summary + ": " + err.Error(),
			"request_id": logger.GetRequestID(c.Request.Context()),
		})
	}
}

// parseID reads the :id path parameter as a positive integer, writing a 400 on failure.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id: " + c.Param("id")})
		return 0, false
	}
	return uint(id), true
}

// page reads limit/offset query parameters, clamping limit to [1, maxPageSize].
func page(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
