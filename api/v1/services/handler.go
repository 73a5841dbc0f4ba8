package services

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"go_hostpanel/internal/httpx"
	"go_hostpanel/internal/model"
	"go_hostpanel/internal/provisioning"
)

// Orchestrator is the provisioning surface the handler uses directly.
// Everything else on a service goes through governance.
type Orchestrator interface {
	CreateService(ctx context.Context, req provisioning.CreateRequest) (*model.HostingService, error)
	TerminatePrepare(ctx context.Context, serviceID int) (*provisioning.TerminationTicket, error)
	TerminateConfirm(ctx context.Context, serviceID int, token string, purge bool) (*provisioning.TerminationResult, error)
}

// Reader loads services and their logs
type Reader interface {
	GetService(ctx context.Context, id int) (*model.HostingService, error)
	ListServices(ctx context.Context, customerID int) ([]model.HostingService, error)
	ListHostingLogs(ctx context.Context, serviceID int, limit int) ([]model.HostingLog, error)
}

// CreateRequest is the body of POST /services
type CreateRequest struct {
	CustomerID    int    `json:"customerId" binding:"required"`
	PrimaryDomain string `json:"primaryDomain" binding:"required"`
	PlanName      string `json:"planName" binding:"required"`
}

// ListRequest filters GET /services
type ListRequest struct {
	CustomerID int `form:"customerId"`
}

// LogsRequest limits GET /services/:id/logs
type LogsRequest struct {
	Limit int `form:"limit"`
}

// TerminateConfirmRequest is the body of POST /services/:id/terminate/confirm
type TerminateConfirmRequest struct {
	Token string `json:"token" binding:"required"`
	Purge bool   `json:"purge"`
}

// Handler serves hosting services
type Handler struct {
	orch   Orchestrator
	reader Reader
}

// NewHandler creates a services handler
func NewHandler(orch Orchestrator, reader Reader) *Handler {
	return &Handler{orch: orch, reader: reader}
}

func serviceID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid service id"))
		return 0, false
	}
	return id, true
}

// Create handles POST /api/v1/services. The service starts in status
// provisioning; hosting/provision is a governed action.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	svc, err := h.orch.CreateService(c.Request.Context(), provisioning.CreateRequest{
		CustomerID:    req.CustomerID,
		PrimaryDomain: req.PrimaryDomain,
		PlanName:      req.PlanName,
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, svc)
}

// List handles GET /api/v1/services
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	items, err := h.reader.ListServices(c.Request.Context(), req.CustomerID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKItems(c, items, int64(len(items)))
}

// Get handles GET /api/v1/services/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := serviceID(c)
	if !ok {
		return
	}
	svc, err := h.reader.GetService(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, svc)
}

// Logs handles GET /api/v1/services/:id/logs
func (h *Handler) Logs(c *gin.Context) {
	id, ok := serviceID(c)
	if !ok {
		return
	}
	var req LogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}
	logs, err := h.reader.ListHostingLogs(c.Request.Context(), id, req.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKItems(c, logs, int64(len(logs)))
}

// TerminatePrepare handles POST /api/v1/services/:id/terminate/prepare
func (h *Handler) TerminatePrepare(c *gin.Context) {
	id, ok := serviceID(c)
	if !ok {
		return
	}
	ticket, err := h.orch.TerminatePrepare(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, ticket)
}

// TerminateConfirm handles POST /api/v1/services/:id/terminate/confirm
func (h *Handler) TerminateConfirm(c *gin.Context) {
	id, ok := serviceID(c)
	if !ok {
		return
	}
	var req TerminateConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	res, err := h.orch.TerminateConfirm(c.Request.Context(), id, req.Token, req.Purge)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, res)
}
