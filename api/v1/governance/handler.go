package governance

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"go_hostpanel/api/v1/middleware"
	"go_hostpanel/internal/governance"
	"go_hostpanel/internal/httpx"
)

// PrepareRequest is the body of POST /governance/prepare
type PrepareRequest struct {
	Module             string          `json:"module" binding:"required"`
	Action             string          `json:"action" binding:"required"`
	TargetKind         string          `json:"targetKind"`
	TargetKey          string          `json:"targetKey" binding:"required"`
	Payload            json.RawMessage `json:"payload"`
	Risk               string          `json:"risk"`
	Reversibility      string          `json:"reversibility"`
	ImpactedSubsystems []string        `json:"impactedSubsystems"`
	Reason             string          `json:"reason"`
}

// ConfirmRequest is the body of POST /governance/confirm
type ConfirmRequest struct {
	IntentID string `json:"intentId" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

// CancelRequest is the optional body of POST /governance/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ActionInfo describes one registered action
type ActionInfo struct {
	Module             string   `json:"module"`
	Action             string   `json:"action"`
	TargetKind         string   `json:"targetKind"`
	Risk               string   `json:"risk"`
	Reversibility      string   `json:"reversibility"`
	ImpactedSubsystems []string `json:"impactedSubsystems"`
}

// Handler serves the prepare/confirm protocol
type Handler struct {
	dispatcher *governance.Dispatcher
	registry   *governance.Registry
}

// NewHandler creates a governance handler
func NewHandler(dispatcher *governance.Dispatcher, registry *governance.Registry) *Handler {
	return &Handler{dispatcher: dispatcher, registry: registry}
}

// Actions handles GET /api/v1/governance/actions
func (h *Handler) Actions(c *gin.Context) {
	list := h.registry.List()
	items := make([]ActionInfo, 0, len(list))
	for _, a := range list {
		items = append(items, ActionInfo{
			Module:             a.Module,
			Action:             a.Action,
			TargetKind:         a.TargetKind,
			Risk:               a.Risk,
			Reversibility:      a.Reversibility,
			ImpactedSubsystems: a.ImpactedSubsystems,
		})
	}
	httpx.OKItems(c, items, int64(len(items)))
}

// Prepare handles POST /api/v1/governance/prepare
func (h *Handler) Prepare(c *gin.Context) {
	var req PrepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	resp, err := h.dispatcher.Prepare(c.Request.Context(), governance.PrepareRequest{
		Module:             req.Module,
		Action:             req.Action,
		TargetKind:         req.TargetKind,
		TargetKey:          req.TargetKey,
		Payload:            req.Payload,
		Risk:               req.Risk,
		Reversibility:      req.Reversibility,
		ImpactedSubsystems: req.ImpactedSubsystems,
		Actor:              middleware.Actor(c, req.Reason),
	})
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, resp)
}

// Confirm handles POST /api/v1/governance/confirm. A failed action still
// answers 200 with a FAILED envelope.
func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	env, err := h.dispatcher.Confirm(c.Request.Context(), req.IntentID, req.Token)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, env)
}

// Cancel handles POST /api/v1/governance/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
	}
	intent, err := h.dispatcher.Ledger().Cancel(c.Request.Context(), c.Param("id"), middleware.Actor(c, req.Reason))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, intent)
}

// Get handles GET /api/v1/governance/:id
func (h *Handler) Get(c *gin.Context) {
	intent, audit, err := h.dispatcher.Ledger().Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"intent": intent, "audit": audit})
}
