package migrations

import (
	"context"

	"github.com/gin-gonic/gin"

	"go_hostpanel/internal/httpx"
	"go_hostpanel/internal/migration"
	"go_hostpanel/internal/model"
)

// Runner is the migration surface the handler uses
type Runner interface {
	CreateJob(ctx context.Context, req migration.CreateJobRequest) (*model.MigrationJob, error)
	Describe(ctx context.Context, jobID string) (*model.MigrationJob, error)
	PlanJob(ctx context.Context, jobID string) ([]model.MigrationStep, error)
	RunNextStep(ctx context.Context, jobID string) (*migration.StepReport, error)
	RetryStep(ctx context.Context, jobID, stepID string) (*migration.StepReport, error)
}

// Handler serves migration jobs. Running a whole job unattended is the
// governed action migration/run or the background worker.
type Handler struct {
	runner Runner
}

// NewHandler creates a migrations handler
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// Create handles POST /api/v1/migrations
func (h *Handler) Create(c *gin.Context) {
	var req migration.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	job, err := h.runner.CreateJob(c.Request.Context(), req)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.Created(c, job)
}

// Get handles GET /api/v1/migrations/:id
func (h *Handler) Get(c *gin.Context) {
	job, err := h.runner.Describe(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, job)
}

// Plan handles POST /api/v1/migrations/:id/plan
func (h *Handler) Plan(c *gin.Context) {
	steps, err := h.runner.PlanJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OKItems(c, steps, int64(len(steps)))
}

// RunNext handles POST /api/v1/migrations/:id/run-next
func (h *Handler) RunNext(c *gin.Context) {
	report, err := h.runner.RunNextStep(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, report)
}

// Retry handles POST /api/v1/migrations/:id/steps/:stepId/retry
func (h *Handler) Retry(c *gin.Context) {
	report, err := h.runner.RetryStep(c.Request.Context(), c.Param("id"), c.Param("stepId"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, report)
}
