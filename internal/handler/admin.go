package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/AbdulSatterism/party-management/internal/model"
	"github.com/AbdulSatterism/party-management/internal/service"
)

// Settlements is the operator surface of the settlement service.
type Settlements interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
	PendingPayouts(ctx context.Context) ([]model.HostPayout, error)
}

// AdminHandler serves the ADMIN-only operator endpoints.
type AdminHandler struct {
	settlements Settlements
}

func NewAdminHandler(s Settlements) *AdminHandler {
	if s == nil {
		panic("nil settlement service passed to NewAdminHandler")
	}
	return &AdminHandler{settlements: s}
}

// RunSettlement handles POST /v1/admin/settlements/run.
func (h *AdminHandler) RunSettlement(c echo.Context) error {
	report, err := h.settlements.Sweep(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	failed := report.Failed
	if failed == nil {
		failed = []service.SettlementFailure{}
	}
	skipped := report.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"started_at": report.StartedAt,
		"candidates": report.Candidates,
		"paid":       toHostPayoutViews(report.Paid),
		"failed":     failed,
		"skipped":    skipped,
		"stale":      toHostPayoutViews(report.Stale),
	})
}

// PendingPayouts handles GET /v1/admin/payouts/pending.
func (h *AdminHandler) PendingPayouts(c echo.Context) error {
	pending, err := h.settlements.PendingPayouts(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"payouts": toHostPayoutViews(pending)})
}
