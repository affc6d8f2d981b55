package handler

import (
	"errors"
	"io"
	"net/http"

	"comerse-go/internal/service"
	"comerse-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxUploadSize caps training uploads at 10 MB.
const maxUploadSize = 10 << 20

// TrainingHandler manages knowledge-base uploads and jobs.
type TrainingHandler struct {
	ingestion service.IngestionService
}

// NewTrainingHandler creates a TrainingHandler.
func NewTrainingHandler(ingestion service.IngestionService) *TrainingHandler {
	return &TrainingHandler{ingestion: ingestion}
}

// Upload handles POST /api/v1/training/upload (session auth): multipart file
// plus dataType. Returns the async training job.
func (h *TrainingHandler) Upload(c *gin.Context) {
	h.ingest(c, false)
}

// Replace handles POST /api/v1/training/replace (session auth): drops the
// tenant's knowledge base before ingesting the upload.
func (h *TrainingHandler) Replace(c *gin.Context) {
	h.ingest(c, true)
}

func (h *TrainingHandler) ingest(c *gin.Context, replace bool) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 10MB limit"})
		return
	}
	dataType := c.PostForm("dataType")

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	var job interface{}
	if replace {
		job, err = h.ingestion.Replace(c.Request.Context(), tenant, fileHeader.Filename, dataType, data)
	} else {
		job, err = h.ingestion.Upload(c.Request.Context(), tenant, fileHeader.Filename, dataType, data)
	}
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("training upload failed: tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "training started",
		"data":    job,
	})
}

// Delete handles DELETE /api/v1/training (session auth): wipes the tenant's
// knowledge base.
func (h *TrainingHandler) Delete(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	if err := h.ingestion.DeleteKnowledgeBase(c.Request.Context(), tenant); err != nil {
		log.Errorf("knowledge base delete failed: tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "knowledge base deleted",
		"data":    nil,
	})
}

// Job handles GET /api/v1/training/jobs/:jobId (session auth).
func (h *TrainingHandler) Job(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	job, err := h.ingestion.GetJob(tenant.ID, c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "training job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    job,
	})
}

// Jobs handles GET /api/v1/training/jobs (session auth).
func (h *TrainingHandler) Jobs(c *gin.Context) {
	tenant := mustTenant(c)
	if tenant == nil {
		return
	}

	jobs, err := h.ingestion.ListJobs(tenant.ID)
	if err != nil {
		log.Errorf("failed to list training jobs: tenant=%d error: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    jobs,
	})
}
