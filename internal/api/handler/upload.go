package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/prodimport/internal/domain"
	"github.com/timmy/prodimport/internal/service"
)

// UploadHandler handles catalog file uploads and job progress.
type UploadHandler struct {
	uploads  *service.UploadService
	maxBytes int64
}

// JobResponse is an ingestion job as reported to clients.
type JobResponse struct {
	*domain.IngestionJob
	ProgressPercentage float64 `json:"progress_percentage"`
}

func newJobResponse(job *domain.IngestionJob) JobResponse {
	return JobResponse{IngestionJob: job, ProgressPercentage: job.ProgressPercentage()}
}

// NewUploadHandler creates a new upload handler.
// Parameters:
//   - uploads: upload service instance.
//   - maxBytes: largest accepted request body; zero or less disables the limit.
// Returns:
//   - *UploadHandler: initialized handler.
func NewUploadHandler(uploads *service.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes}
}

// Create handles POST /api/v1/uploads with a multipart "file" field.
func (h *UploadHandler) Create(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds the upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing multipart field 'file': " + err.Error()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload: " + err.Error()})
		return
	}
	defer f.Close()

	job, err := h.uploads.Upload(c.Request.Context(), fh.Filename, f, fh.Size)
	if err != nil {
		respondError(c, err, "Failed to accept upload")
		return
	}

	c.JSON(http.StatusAccepted, newJobResponse(job))
}

// Get handles GET /api/v1/uploads/:id.
func (h *UploadHandler) Get(c *gin.Context) {
	job, err := h.uploads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to get upload")
		return
	}
	c.JSON(http.StatusOK, newJobResponse(job))
}

// List handles GET /api/v1/uploads.
func (h *UploadHandler) List(c *gin.Context) {
	limit, offset := page(c)

	jobs, err := h.uploads.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err, "Failed to list uploads")
		return
	}

	items := make([]JobResponse, len(jobs))
	for i := range jobs {
		items[i] = newJobResponse(&jobs[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

// Process handles POST /api/v1/uploads/:id/process.
func (h *UploadHandler) Process(c *gin.Context) {
	job, err := h.uploads.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to submit upload")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Upload processing started asynchronously",
		"job":     newJobResponse(job),
	})
}
