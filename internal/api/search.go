package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/indexer/search"
	"github.com/sportarr/sportarr/internal/library"
)

func (s *Server) setupSearchRoutes(g *echo.Group) {
	g.POST("/search/event/:id", s.searchEvent)
	g.POST("/search/monitored", s.searchMonitored)
	g.GET("/search/releases", s.searchReleases)
}

// searchEvent runs a full search-and-grab flight for one event or part.
// A manual search skips monitoring and backoff checks.
func (s *Server) searchEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	part := 0
	if p := c.QueryParam("part"); p != "" {
		part, err = strconv.Atoi(p)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errBody(err))
		}
	}
	manual := c.QueryParam("manual") != "false"

	outcome, err := s.deps.AutoSearch.SearchAndDownload(c.Request().Context(), id, part, manual)
	if err != nil {
		switch {
		case errors.Is(err, library.ErrEventNotFound):
			return c.JSON(http.StatusNotFound, errBody(err))
		case errors.Is(err, search.ErrNoIndexers):
			return c.JSON(http.StatusConflict, errBody(err))
		default:
			return c.JSON(http.StatusInternalServerError, errBody(err))
		}
	}
	return c.JSON(http.StatusOK, outcome)
}

// searchMonitored sweeps every monitored missing event.
func (s *Server) searchMonitored(c echo.Context) error {
	outcomes, err := s.deps.AutoSearch.SearchAllMonitored(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, outcomes)
}

// searchReleases runs an interactive search and returns the aggregated
// candidates without grabbing anything.
func (s *Server) searchReleases(c echo.Context) error {
	eventID, err := strconv.ParseInt(c.QueryParam("eventId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(errors.New("eventId is required")))
	}

	event, err := s.deps.Library.Get(c.Request().Context(), eventID)
	if err != nil {
		return s.eventError(c, err)
	}

	criteria := indexer.SearchCriteria{
		Query:  event.Title,
		Sport:  event.Sport,
		Season: event.Season,
	}
	if p := c.QueryParam("part"); p != "" {
		criteria.Part, _ = strconv.Atoi(p)
	}

	result, err := s.deps.Search.SearchAll(c.Request().Context(), criteria)
	if err != nil {
		if errors.Is(err, search.ErrNoIndexers) {
			return c.JSON(http.StatusConflict, errBody(err))
		}
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, result)
}
