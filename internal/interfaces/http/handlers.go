package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agency-crm/automation-core/internal/application/port"
	"github.com/agency-crm/automation-core/internal/commission"
	"github.com/agency-crm/automation-core/internal/domain/automation"
	"github.com/agency-crm/automation-core/internal/domain/entity"
	"github.com/agency-crm/automation-core/internal/engine"
	"github.com/agency-crm/automation-core/internal/report"
	"github.com/agency-crm/automation-core/internal/sla"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    *engine.Engine
	monitor   *sla.Monitor
	instances port.InstanceRepository
	tasks     port.TaskRepository
	auditLog  port.AutomationLogRepository
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	workflowEngine *engine.Engine,
	monitor *sla.Monitor,
	instances port.InstanceRepository,
	tasks port.TaskRepository,
	auditLog port.AutomationLogRepository,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:    workflowEngine,
		monitor:   monitor,
		instances: instances,
		tasks:     tasks,
		auditLog:  auditLog,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StartWorkflowRequest is the payload for starting a workflow instance.
type StartWorkflowRequest struct {
	ClientID   string `json:"client_id" binding:"required"`
	ClientName string `json:"client_name"`
	StartedBy  string `json:"started_by" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":  "healthy",
			"service": "automation-core",
			"time":    time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// StartWorkflow handles POST /api/v1/workflows/:id/instances
func (h *Handlers) StartWorkflow(c *gin.Context) {
	workflowID := c.Param("id")

	var req StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	instanceID, err := h.engine.Start(c.Request.Context(), workflowID, req.ClientID, req.ClientName, req.StartedBy)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, automation.ErrWorkflowNotFound):
			status = http.StatusNotFound
		case errors.Is(err, automation.ErrWorkflowInactive),
			errors.Is(err, automation.ErrActiveInstanceExists):
			status = http.StatusConflict
		}
		h.logger.Error("Failed to start workflow",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		c.JSON(status, Response{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    gin.H{"instance_id": instanceID},
	})
}

// TaskCompleted handles POST /api/v1/tasks/:id/completed. Called
// synchronously from the task-update code path; always accepted, since a
// completed task that does not advance a workflow is not an error.
func (h *Handlers) TaskCompleted(c *gin.Context) {
	taskID := c.Param("id")
	h.engine.OnTaskCompleted(c.Request.Context(), taskID)
	c.JSON(http.StatusAccepted, Response{Success: true})
}

// RunSLAChecks handles POST /api/v1/sla-check, the external cron target.
func (h *Handlers) RunSLAChecks(c *gin.Context) {
	h.monitor.RunChecks(c.Request.Context())
	c.JSON(http.StatusOK, Response{Success: true})
}

// SLAReport handles GET /api/v1/sla-report?start=&end=
func (h *Handlers) SLAReport(c *gin.Context) {
	start, end, ok := h.reportRange(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.monitor.Report(c.Request.Context(), start, end),
	})
}

// ExportSLAReport handles GET /api/v1/sla-report/export, returning the report
// as an .xlsx workbook.
func (h *Handlers) ExportSLAReport(c *gin.Context) {
	start, end, ok := h.reportRange(c)
	if !ok {
		return
	}

	data, err := report.ExportSLAReport(h.monitor.Report(c.Request.Context(), start, end))
	if err != nil {
		h.logger.Error("Failed to export SLA report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "export failed"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="sla-report.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// CalculateCommission handles POST /api/v1/commission/calculate. Stateless:
// the result is a projection of the posted deal and is not persisted.
func (h *Handlers) CalculateCommission(c *gin.Context) {
	var deal entity.Deal
	if err := c.ShouldBindJSON(&deal); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid deal payload"})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    commission.Calculate(&deal),
	})
}

// ClientInstances handles GET /api/v1/clients/:id/instances, newest first.
func (h *Handlers) ClientInstances(c *gin.Context) {
	clientID := c.Param("id")

	instances, err := h.instances.GetByClient(c.Request.Context(), clientID)
	if err != nil {
		h.logger.Error("Failed to list client instances",
			zap.String("client_id", clientID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to list instances"})
		return
	}
	if instances == nil {
		instances = []*entity.WorkflowInstance{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// WorkflowTasks handles GET /api/v1/workflows/:id/tasks.
func (h *Handlers) WorkflowTasks(c *gin.Context) {
	workflowID := c.Param("id")

	tasks, err := h.tasks.ListByWorkflow(c.Request.Context(), workflowID)
	if err != nil {
		h.logger.Error("Failed to list workflow tasks",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []*entity.Task{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tasks})
}

// Activity handles GET /api/v1/activity?limit=, the live-activity feed.
func (h *Handlers) Activity(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.auditLog.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read activity feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "failed to read activity feed"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// reportRange parses the start/end query parameters, defaulting to the last
// 30 days.
func (h *Handlers) reportRange(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid start date"})
			return start, end, false
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid end date"})
			return start, end, false
		}
		// Include the whole end day
		end = parsed.Add(24*time.Hour - time.Nanosecond)
	}

	return start, end, true
}
