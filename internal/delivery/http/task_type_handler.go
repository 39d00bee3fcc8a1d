package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
)

// TaskTypeHandler lists the task types this deployment accepts.
type TaskTypeHandler struct {
	registry *tasks.Registry
}

// NewTaskTypeHandler creates a new TaskTypeHandler.
func NewTaskTypeHandler(registry *tasks.Registry) *TaskTypeHandler {
	return &TaskTypeHandler{registry: registry}
}

// List handles GET /api/v1/task-types
func (h *TaskTypeHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"task_types": h.registry.Types(),
	})
}
