package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sportarr/sportarr/internal/history"
)

func (s *Server) setupQueueRoutes(g *echo.Group) {
	g.GET("/queue", s.listQueue)
	g.POST("/queue/:grabId/retry", s.retryImport)
	g.DELETE("/queue/:grabId", s.removeFromQueue)
	g.GET("/history/imports", s.listImports)
}

// queueItem is one active grab joined with live client state.
type queueItem struct {
	Grab     *history.GrabRecord `json:"grab"`
	Progress float64             `json:"progress"`
	Status   string              `json:"status,omitempty"`
}

func (s *Server) listQueue(c echo.Context) error {
	ctx := c.Request().Context()
	grabs, err := s.deps.History.ListActiveGrabs(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}

	items := make([]queueItem, 0, len(grabs))
	for _, grab := range grabs {
		item := queueItem{Grab: grab}
		if grab.ClientID != 0 && grab.DownloadID != "" {
			if res := s.deps.Downloader.StatusOf(ctx, grab.ClientID, grab.DownloadID); res.Success {
				item.Progress = res.Status.Progress
				item.Status = res.Status.Status
			}
		}
		items = append(items, item)
	}
	return c.JSON(http.StatusOK, items)
}

// retryImport re-runs the import of a failed grab whose download data is
// still on the client.
func (s *Server) retryImport(c echo.Context) error {
	ctx := c.Request().Context()
	grab, err := s.deps.History.GetGrab(ctx, c.Param("grabId"))
	if err != nil {
		if errors.Is(err, history.ErrGrabNotFound) {
			return c.JSON(http.StatusNotFound, errBody(err))
		}
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	if grab.State != history.StateFailed {
		return c.JSON(http.StatusConflict, errBody(errors.New("only failed grabs can be retried")))
	}

	res := s.deps.Downloader.StatusOf(ctx, grab.ClientID, grab.DownloadID)
	if !res.Success {
		return c.JSON(http.StatusConflict, errBody(errors.New("download no longer available: "+res.Error)))
	}

	if err := s.deps.Importer.ImportCompleted(ctx, grab, res.Status.ContentPath); err != nil {
		if stateErr := s.deps.History.SetGrabState(ctx, grab.ID, history.StateFailed, err.Error()); stateErr != nil {
			s.logger.Warn().Err(stateErr).Str("grabId", grab.ID).Msg("Failed to persist grab state")
		}
		return c.JSON(http.StatusUnprocessableEntity, errBody(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "import completed"})
}

// removeFromQueue abandons a grab, optionally deleting it from the client.
func (s *Server) removeFromQueue(c echo.Context) error {
	ctx := c.Request().Context()
	grab, err := s.deps.History.GetGrab(ctx, c.Param("grabId"))
	if err != nil {
		if errors.Is(err, history.ErrGrabNotFound) {
			return c.JSON(http.StatusNotFound, errBody(err))
		}
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}

	if c.QueryParam("removeFromClient") == "true" && grab.ClientID != 0 && grab.DownloadID != "" {
		deleteFiles := c.QueryParam("deleteFiles") == "true"
		if res := s.deps.Downloader.Remove(ctx, grab.ClientID, grab.DownloadID, deleteFiles); !res.Success {
			s.logger.Warn().Str("grabId", grab.ID).Str("error", res.Error).Msg("Failed to remove download from client")
		}
	}

	if err := s.deps.History.SetGrabState(ctx, grab.ID, history.StateFailed, "removed by user"); err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listImports(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	imports, err := s.deps.History.ListImports(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, imports)
}
