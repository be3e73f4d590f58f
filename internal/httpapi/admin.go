package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// handleCleanup triggers a retention sweep. The optional retention_days
// body field overrides the configured window for this run only.
func (s *Server) handleCleanup(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.tenantID(c); err != nil {
		return err
	}

	if s.sweeper == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "retention sweeps are not configured")
	}

	var req CleanupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RetentionDays < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "retention_days must not be negative")
	}

	window := s.sweeper.Window()
	if req.RetentionDays > 0 {
		window = time.Duration(req.RetentionDays) * 24 * time.Hour
	}

	result, err := s.sweeper.RunWindow(ctx, window)
	if err != nil {
		return c.JSON(http.StatusOK, APIResponse{
			Success: false,
			Message: "Failed to run cleanup",
			Error:   err.Error(),
		})
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Cleanup removed %d documents and %d vectors",
			result.DocumentsDeleted, result.VectorsDeleted+result.OrphansDeleted),
		Data: CleanupResult{
			DocumentsScanned: result.DocumentsScanned,
			DocumentsDeleted: result.DocumentsDeleted,
			VectorsDeleted:   result.VectorsDeleted,
			OrphansDeleted:   result.OrphansDeleted,
			Failures:         result.Failures,
		},
	})
}
