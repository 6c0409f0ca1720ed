package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/site-approval/internal/application/approval"
	"github.com/garyjia/site-approval/internal/application/port"
	"github.com/garyjia/site-approval/internal/domain/entity"
	"github.com/garyjia/site-approval/internal/domain/workflow"
	"github.com/garyjia/site-approval/pkg/utils"
)

// UserHeader carries the acting user's ID. Authentication happens upstream;
// the API trusts this header.
const UserHeader = "X-User-ID"

// ApprovalEngine is the subset of the approval engine the API drives
type ApprovalEngine interface {
	CreateRequest(ctx context.Context, reqType entity.RequestType, requestorID string, in approval.RequestInput) (*entity.ApprovalRequest, error)
	SubmitRequest(ctx context.Context, requestID string) (*entity.ApprovalRequest, error)
	ApproveStep(ctx context.Context, requestID, approverID, comment string) (*entity.ApprovalRequest, error)
	RejectStep(ctx context.Context, requestID, approverID, reason string) (*entity.ApprovalRequest, error)
	EscalateRequest(ctx context.Context, requestID, approverID, reason string) (*entity.ApprovalRequest, error)
	AddComment(ctx context.Context, requestID, userID, text string) (*entity.ApprovalRequest, error)
	CompleteRequest(ctx context.Context, requestID, userID string) (*entity.ApprovalRequest, error)
	GetRequest(ctx context.Context, requestID string) (*entity.ApprovalRequest, error)
	ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.ApprovalRequest, error)
	GetPendingForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error)
	GetStatistics(ctx context.Context, userID, orgUnitID string) (*approval.Statistics, error)
	ScopedRequests(ctx context.Context, userID, orgUnitID string) ([]*entity.ApprovalRequest, error)
}

// StatisticsExporter renders statistics into a downloadable document
type StatisticsExporter interface {
	Write(out io.Writer, stats *approval.Statistics, requests []*entity.ApprovalRequest, generatedAt time.Time) error
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   ApprovalEngine
	exporter StatisticsExporter
	logger   Logger
	now      func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine ApprovalEngine, exporter StatisticsExporter, logger Logger) *Handlers {
	return &Handlers{
		engine:   engine,
		exporter: exporter,
		logger:   logger,
		now:      time.Now,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateRequestBody is the payload of POST /api/requests
type CreateRequestBody struct {
	Type        string                 `json:"type" binding:"required"`
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Amount      *float64               `json:"amount"`
	Priority    string                 `json:"priority"`
	Metadata    map[string]interface{} `json:"metadata"`
	Attachments []string               `json:"attachments"`
}

// DecisionBody is the payload of approve, reject and escalate
type DecisionBody struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

// CommentBody is the payload of POST /api/requests/:id/comments
type CommentBody struct {
	Text string `json:"text" binding:"required"`
}

// ListRequestsQuery holds the query parameters of GET /api/requests
type ListRequestsQuery struct {
	Type          string `form:"type"`
	Status        string `form:"status"`
	OrgUnitID     string `form:"org_unit_id"`
	RequestorID   string `form:"requestor_id"`
	CreatedAfter  string `form:"created_after"`
	CreatedBefore string `form:"created_before"`
}

// StatisticsQuery holds the query parameters of the statistics endpoints
type StatisticsQuery struct {
	UserID    string `form:"user_id"`
	OrgUnitID string `form:"org_unit_id"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: h.now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}
	if body.Amount != nil {
		if err := utils.ValidateAmount(*body.Amount); err != nil {
			h.badRequest(c, err.Error(), err)
			return
		}
	}

	req, err := h.engine.CreateRequest(c.Request.Context(), entity.RequestType(body.Type), userID, approval.RequestInput{
		Title:       utils.SanitizeString(body.Title),
		Description: utils.SanitizeString(body.Description),
		Amount:      body.Amount,
		Priority:    entity.Priority(body.Priority),
		Metadata:    body.Metadata,
		Attachments: body.Attachments,
	})
	if err != nil {
		h.fail(c, "Failed to create request", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	filter := port.RequestFilter{
		Type:        entity.RequestType(q.Type),
		Status:      workflow.State(q.Status),
		OrgUnitID:   q.OrgUnitID,
		RequestorID: q.RequestorID,
	}
	var err error
	if filter.CreatedAfter, err = parseTime(q.CreatedAfter); err != nil {
		h.badRequest(c, "created_after must be RFC3339", err)
		return
	}
	if filter.CreatedBefore, err = parseTime(q.CreatedBefore); err != nil {
		h.badRequest(c, "created_before must be RFC3339", err)
		return
	}

	requests, err := h.engine.ListRequests(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list requests", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.engine.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get request", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// SubmitRequest handles POST /api/requests/:id/submit
func (h *Handlers) SubmitRequest(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	current, err := h.engine.GetRequest(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to submit request", err)
		return
	}
	if current.Requestor.ID != userID {
		h.fail(c, "Failed to submit request", fmt.Errorf("%w: only the requestor can submit", approval.ErrUnauthorized))
		return
	}

	h.respond(c, "Failed to submit request", func() (*entity.ApprovalRequest, error) {
		return h.engine.SubmitRequest(ctx, current.ID)
	})
}

// ApproveStep handles POST /api/requests/:id/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	h.decide(c, "Failed to approve step", func(ctx context.Context, id, userID string, body DecisionBody) (*entity.ApprovalRequest, error) {
		return h.engine.ApproveStep(ctx, id, userID, body.Comment)
	})
}

// RejectStep handles POST /api/requests/:id/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	h.decide(c, "Failed to reject step", func(ctx context.Context, id, userID string, body DecisionBody) (*entity.ApprovalRequest, error) {
		return h.engine.RejectStep(ctx, id, userID, body.Reason)
	})
}

// EscalateRequest handles POST /api/requests/:id/escalate
func (h *Handlers) EscalateRequest(c *gin.Context) {
	h.decide(c, "Failed to escalate request", func(ctx context.Context, id, userID string, body DecisionBody) (*entity.ApprovalRequest, error) {
		return h.engine.EscalateRequest(ctx, id, userID, body.Reason)
	})
}

// AddComment handles POST /api/requests/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}

	var body CommentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	h.respond(c, "Failed to add comment", func() (*entity.ApprovalRequest, error) {
		return h.engine.AddComment(c.Request.Context(), c.Param("id"), userID, utils.SanitizeString(body.Text))
	})
}

// CompleteRequest handles POST /api/requests/:id/complete
func (h *Handlers) CompleteRequest(c *gin.Context) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}

	h.respond(c, "Failed to complete request", func() (*entity.ApprovalRequest, error) {
		return h.engine.CompleteRequest(c.Request.Context(), c.Param("id"), userID)
	})
}

// GetPendingForUser handles GET /api/users/:id/pending
func (h *Handlers) GetPendingForUser(c *gin.Context) {
	requests, err := h.engine.GetPendingForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to list pending requests", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetStatistics handles GET /api/statistics
func (h *Handlers) GetStatistics(c *gin.Context) {
	var q StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	stats, err := h.engine.GetStatistics(c.Request.Context(), q.UserID, q.OrgUnitID)
	if err != nil {
		h.fail(c, "Failed to compute statistics", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// ExportStatistics handles GET /api/statistics/export
func (h *Handlers) ExportStatistics(c *gin.Context) {
	var q StatisticsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	requests, err := h.engine.ScopedRequests(c.Request.Context(), q.UserID, q.OrgUnitID)
	if err != nil {
		h.fail(c, "Failed to export statistics", err)
		return
	}

	now := h.now()
	filename := fmt.Sprintf("approval-statistics-%s.xlsx", now.Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Status(http.StatusOK)

	if err := h.exporter.Write(c.Writer, approval.ComputeStatistics(requests), requests, now); err != nil {
		h.logger.Error("Failed to write statistics workbook", "error", err)
		_ = c.Error(err)
	}
}

type decision func(ctx context.Context, requestID, userID string, body DecisionBody) (*entity.ApprovalRequest, error)

// decide runs one of the step decisions. The body is optional.
func (h *Handlers) decide(c *gin.Context, failure string, fn decision) {
	userID, ok := h.actor(c)
	if !ok {
		return
	}

	var body DecisionBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}
	body.Comment = utils.SanitizeString(body.Comment)
	body.Reason = utils.SanitizeString(body.Reason)

	h.respond(c, failure, func() (*entity.ApprovalRequest, error) {
		return fn(c.Request.Context(), c.Param("id"), userID, body)
	})
}

func (h *Handlers) respond(c *gin.Context, failure string, fn func() (*entity.ApprovalRequest, error)) {
	req, err := fn()
	if err != nil {
		h.fail(c, failure, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// actor reads the acting user, answering 401 when it is missing
func (h *Handlers) actor(c *gin.Context) (string, bool) {
	userID := c.GetHeader(UserHeader)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   UserHeader + " header is required",
		})
		return "", false
	}
	return userID, true
}

func (h *Handlers) badRequest(c *gin.Context, message string, err error) {
	h.logger.Error("Invalid request", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: message})
}

func (h *Handlers) fail(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, approval.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, approval.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrInvalidState),
		errors.Is(err, approval.ErrAlreadyProcessed),
		errors.Is(err, approval.ErrEscalationNotAllowed),
		errors.Is(err, approval.ErrNoHigherAuthority):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
