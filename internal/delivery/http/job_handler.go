package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/delivery/http/middleware"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

// JobHandler handles HTTP requests for asynchronous jobs.
type JobHandler struct {
	submitUC *usecase.SubmitJobUsecase
	getJobUC *usecase.GetJobUsecase
	logger   *zap.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(submitUC *usecase.SubmitJobUsecase, getJobUC *usecase.GetJobUsecase, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		submitUC: submitUC,
		getJobUC: getJobUC,
		logger:   logger,
	}
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}
	req.OwnerID = middleware.OwnerID(c)

	h.submit(c, &req)
}

type summarizeRequest struct {
	Text string `json:"text"`
}

// Summarize handles POST /api/v1/summarize. The text arrives either as JSON
// {"text": ...} or as a multipart upload in the "file" field; uploaded bytes
// are decoded as UTF-8 with invalid sequences replaced.
func (h *JobHandler) Summarize(c *gin.Context) {
	var text string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			h.badBody(c, err)
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.badBody(c, err)
			return
		}
		defer f.Close()

		raw, err := io.ReadAll(f)
		if err != nil {
			h.badBody(c, err)
			return
		}
		text = strings.ToValidUTF8(string(raw), "\uFFFD")
	} else {
		var body summarizeRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badBody(c, err)
			return
		}
		text = body.Text
	}

	payload, err := json.Marshal(tasks.SummarizationPayload{Text: text})
	if err != nil {
		writeError(c, fmt.Errorf("encode payload: %w", err), h.logger)
		return
	}

	h.submit(c, &domain.SubmitRequest{
		OwnerID:  middleware.OwnerID(c),
		TaskType: domain.TaskSummarization,
		Payload:  payload,
	})
}

func (h *JobHandler) submit(c *gin.Context, req *domain.SubmitRequest) {
	resp, err := h.submitUC.Execute(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// badBody reports an unreadable request, keeping oversize bodies distinct.
func (h *JobHandler) badBody(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(c, maxErr, h.logger)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": "Invalid request body: " + err.Error(),
	})
}

// GetByID handles GET /api/v1/jobs/:id
func (h *JobHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	view, err := h.getJobUC.Execute(c.Request.Context(), id, middleware.OwnerID(c))
	if err != nil {
		writeError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, view)
}
