package handlers

import (
	"errors"
	"net/http"

	"github.com/epeers/navgraph/internal/id"
	"github.com/epeers/navgraph/internal/ingest"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/repository"
	"github.com/epeers/navgraph/internal/services"
	"github.com/epeers/navgraph/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RunHandler handles calculation run endpoints
type RunHandler struct {
	orch    *services.Orchestrator
	ledger  repository.LedgerSource
	results repository.ResultStore
}

// NewRunHandler creates a new RunHandler. ledger may be nil when every request
// carries its own balances and transactions.
func NewRunHandler(orch *services.Orchestrator, ledger repository.LedgerSource, results repository.ResultStore) *RunHandler {
	return &RunHandler{
		orch:    orch,
		ledger:  ledger,
		results: results,
	}
}

// Start handles POST /runs
// @Summary Start a calculation run
// @Description Calculate every monthly period between from and to. Balances and transactions in the body are used as the ledger; without them the ledger is read from the store.
// @Tags runs
// @Accept json
// @Produce json
// @Param request body models.StartRunRequest true "Run parameters"
// @Success 202 {object} models.StartRunResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /runs [post]
func (h *RunHandler) Start(c *gin.Context) {
	var req models.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.From.IsZero() || req.To.IsZero() {
		badRequest(c, "from and to are required")
		return
	}

	periods, err := util.MonthlyPeriods(req.From.Time, req.To.Time)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var in services.RunInput
	if len(req.Balances) > 0 || len(req.Transactions) > 0 {
		ledger, err := ingest.Convert(models.RawLedger{Balances: req.Balances, Transactions: req.Transactions, Reference: req.Reference})
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		prior, err := services.PriorRows(ctx, h.ledger, periods)
		if err != nil {
			internalError(c, err)
			return
		}
		in = services.InputFromLedger(ledger, periods, prior)
	} else {
		if h.ledger == nil {
			badRequest(c, "balances and transactions are required when no ledger store is configured")
			return
		}
		in, err = services.LoadRunInput(ctx, h.ledger, periods)
		if err != nil {
			internalError(c, err)
			return
		}
	}

	runID, err := h.orch.Start(ctx, in)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPeriods) {
			badRequest(c, err.Error())
			return
		}
		internalError(c, err)
		return
	}
	log.WithField("run", runID).Infof("run accepted for %s..%s", periods[0].Label, periods[len(periods)-1].Label)
	c.JSON(http.StatusAccepted, models.StartRunResponse{RunID: runID})
}

// Get handles GET /runs/:id
// @Summary Get run progress
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.ProgressResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /runs/{id} [get]
func (h *RunHandler) Get(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	if p, ok := h.orch.Progress(runID); ok {
		c.JSON(http.StatusOK, p)
		return
	}

	run, err := h.results.GetRun(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			notFound(c)
			return
		}
		internalError(c, err)
		return
	}
	resp := models.ProgressResponse{RunID: run.ID, Status: run.Status, Warnings: run.Warnings}
	if run.Status == models.RunCompleted {
		resp.PercentDone = 100
	}
	c.JSON(http.StatusOK, resp)
}

// Rows handles GET /runs/:id/rows
// @Summary List the calculation rows of a finished run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} models.RowsResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /runs/{id}/rows [get]
func (h *RunHandler) Rows(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	if p, ok := h.orch.Progress(runID); ok && (p.Status == models.RunPending || p.Status == models.RunRunning) {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "conflict",
			Message: "run is still in progress",
		})
		return
	}

	rows, err := h.results.ListRows(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			notFound(c)
			return
		}
		internalError(c, err)
		return
	}
	if rows == nil {
		rows = []models.CalculationRow{}
	}
	c.JSON(http.StatusOK, models.RowsResponse{RunID: runID, Rows: rows})
}

// Cancel handles DELETE /runs/:id
// @Summary Cancel a run
// @Description Cancellation is cooperative; the run stops after in-flight periods and stores its header only.
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} models.ErrorResponse
// @Router /runs/{id} [delete]
func (h *RunHandler) Cancel(c *gin.Context) {
	runID, ok := runIDParam(c)
	if !ok {
		return
	}
	if err := h.orch.Cancel(runID); err != nil {
		if errors.Is(err, services.ErrRunUnknown) {
			notFound(c)
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "cancelling"})
}

// runIDParam reads the :id path parameter. Anything that is not a run ID
// cannot name a run, so it is answered with 404 before any lookup.
func runIDParam(c *gin.Context) (string, bool) {
	runID := c.Param("id")
	if _, err := id.StartedAt(runID); err != nil {
		notFound(c)
		return "", false
	}
	return runID, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad_request",
		Message: msg,
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "run not found",
	})
}

func internalError(c *gin.Context, err error) {
	log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}
