package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/relaypub/scheduler/internal/domain"
	"github.com/relaypub/scheduler/internal/registry"
)

// ScheduleHandler exposes the Task Registry's Submit pipeline over HTTP
// (spec §6/§7): POST a request body in the canonical or legacy ingress
// JSON shape, get back the persisted task or a 400/409.
type ScheduleHandler struct {
	registry *registry.Registry
	logger   *slog.Logger
}

func NewScheduleHandler(reg *registry.Registry, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{registry: reg, logger: logger.With("component", "schedule_handler")}
}

type scheduleResponse struct {
	TaskName      string `json:"taskName"`
	TaskInstance  string `json:"taskInstance"`
	ExecutionTime string `json:"executionTime"`
}

// Submit handles POST /tasks (spec §6): 201 on success, 400 on
// validation failure, 409 on duplicate instance, 500 on store failure.
func (h *ScheduleHandler) Submit(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := registry.ParseRequest(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.registry.Submit(c.Request.Context(), req)
	if err != nil {
		var verr *registry.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		case errors.Is(err, domain.ErrDuplicateInstance):
			c.JSON(http.StatusConflict, gin.H{"error": errDuplicateInstance})
		default:
			h.logger.Error("submit task", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusCreated, scheduleResponse{
		TaskName:      task.TaskName,
		TaskInstance:  task.TaskInstance,
		ExecutionTime: task.ExecutionTime.Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
