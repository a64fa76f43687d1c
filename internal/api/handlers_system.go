package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

var startTime = time.Now()

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus reports server info.
// GET /api/v1/status
func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"version":          s.version,
		"startTime":        startTime.UTC().Format(time.RFC3339),
		"uptimeSeconds":    int(time.Since(startTime).Seconds()),
		"connectedClients": s.hub.ClientCount(),
	})
}

// listTasks lists the scheduled background tasks.
// GET /api/v1/tasks
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.ListTasks())
}

// runTask triggers a background task immediately.
// POST /api/v1/tasks/:id/run
func (s *Server) runTask(c echo.Context) error {
	if err := s.scheduler.RunNow(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}
