package handlers

import (
	"net/http"
	"slices"
	"strings"

	"ytmusicdl/config"
	"ytmusicdl/services"
	"ytmusicdl/types"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// JobHandler handles the job lifecycle endpoints
type JobHandler struct {
	store         *services.JobStore
	executor      *services.Executor
	defaultFormat string
	logger        *log.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(store *services.JobStore, executor *services.Executor, defaultFormat string, logger *log.Logger) *JobHandler {
	return &JobHandler{
		store:         store,
		executor:      executor,
		defaultFormat: defaultFormat,
		logger:        logger,
	}
}

// CreateJob admits a new job and starts it in the background
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req types.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "url is required")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if _, err := services.ParseSource(req.URL); err != nil {
		respondError(c, h.logger, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(req.AudioFormat))
	if format == "" {
		format = h.defaultFormat
	}
	if !slices.Contains(config.SupportedFormats, format) {
		badRequest(c, "unsupported audio format: "+format)
		return
	}

	job, err := h.executor.Submit(req.URL, format)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("job created", "job", job.ID, "url", job.URL, "format", job.AudioFormat)
	c.JSON(http.StatusCreated, gin.H{
		"id":  job.ID,
		"job": job,
	})
}

// ListJobs returns every job, newest first
func (h *JobHandler) ListJobs(c *gin.Context) {
	jobs := h.store.List()
	slices.Reverse(jobs)
	c.JSON(http.StatusOK, types.JobListResponse{
		Jobs:        jobs,
		ActiveJobID: h.store.ActiveID(),
	})
}

// GetJob returns a single job
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.store.Get(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJob requests cancellation. Cancelling a finished job is acknowledged without effect.
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	if err := h.executor.Cancel(id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Cancellation requested",
		"jobId":   id,
	})
}

// DeleteJob removes a finished job
func (h *JobHandler) DeleteJob(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearJobs removes every finished job
func (h *JobHandler) ClearJobs(c *gin.Context) {
	n := h.store.ClearTerminal()
	c.JSON(http.StatusOK, gin.H{"cleared": n})
}
