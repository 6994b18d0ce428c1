package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/speechcare/server/finops"
)

// GetUsageReport returns synthesis spend since the start of a period.
// GET /api/v1/usage?period=day|week|month
func (s *APIV1Service) GetUsageReport(c echo.Context) error {
	period := c.QueryParam("period")
	if period == "" {
		period = finops.PeriodWeek
	}
	if _, err := finops.PeriodStart(period, time.Now()); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := s.CostMonitor.GetCostReport(c.Request().Context(), period)
	if err != nil {
		slog.Error("failed to build usage report", "period", period, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to build usage report"})
	}
	return c.JSON(http.StatusOK, report)
}

// GetStats returns the latest collected statistics.
// GET /api/v1/stats
func (s *APIV1Service) GetStats(c echo.Context) error {
	if s.Stats == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Statistics are not available"})
	}
	stats := s.Stats.GetStats()
	return c.JSON(http.StatusOK, map[string]any{
		"stats":   stats,
		"summary": stats.GetSummary(),
	})
}
