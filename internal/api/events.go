package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sportarr/sportarr/internal/library"
)

func (s *Server) setupEventRoutes(g *echo.Group) {
	g.GET("/events", s.listEvents)
	g.GET("/events/:id", s.getEvent)
	g.POST("/events", s.createEvent)
	g.PUT("/events/:id", s.updateEvent)
	g.DELETE("/events/:id", s.deleteEvent)
	g.GET("/events/:id/history", s.eventHistory)
}

func (s *Server) listEvents(c echo.Context) error {
	var (
		events []*library.Event
		err    error
	)
	if c.QueryParam("missing") == "true" {
		events, err = s.deps.Library.ListMonitoredMissing(c.Request().Context())
	} else {
		events, err = s.deps.Library.List(c.Request().Context())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) getEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	event, err := s.deps.Library.Get(c.Request().Context(), id)
	if err != nil {
		return s.eventError(c, err)
	}
	return c.JSON(http.StatusOK, event)
}

func (s *Server) createEvent(c echo.Context) error {
	var input library.CreateEventInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	event, err := s.deps.Library.Create(c.Request().Context(), input)
	if err != nil {
		return s.eventError(c, err)
	}
	return c.JSON(http.StatusCreated, event)
}

func (s *Server) updateEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	var input library.UpdateEventInput
	if err := c.Bind(&input); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	event, err := s.deps.Library.Update(c.Request().Context(), id, input)
	if err != nil {
		return s.eventError(c, err)
	}
	return c.JSON(http.StatusOK, event)
}

func (s *Server) deleteEvent(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	if err := s.deps.Library.Delete(c.Request().Context(), id); err != nil {
		return s.eventError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) eventHistory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}

	grabs, err := s.deps.History.ListGrabsForEvent(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, grabs)
}

func (s *Server) eventError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, library.ErrEventNotFound), errors.Is(err, library.ErrPartNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, library.ErrInvalidEvent):
		return c.JSON(http.StatusBadRequest, errBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
