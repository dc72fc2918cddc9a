package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sportarr/sportarr/internal/customformat"
	"github.com/sportarr/sportarr/internal/downloader"
	"github.com/sportarr/sportarr/internal/indexer"
	"github.com/sportarr/sportarr/internal/notification"
	"github.com/sportarr/sportarr/internal/quality"
)

func (s *Server) setupSettingsRoutes(g *echo.Group) {
	g.GET("/qualityprofiles", s.listProfiles)
	g.GET("/qualityprofiles/:id", s.getProfile)
	g.POST("/qualityprofiles", s.createProfile)
	g.PUT("/qualityprofiles/:id", s.updateProfile)
	g.DELETE("/qualityprofiles/:id", s.deleteProfile)

	g.GET("/customformats", s.listFormats)
	g.GET("/customformats/:id", s.getFormat)
	g.POST("/customformats", s.createFormat)
	g.PUT("/customformats/:id", s.updateFormat)
	g.DELETE("/customformats/:id", s.deleteFormat)

	g.GET("/indexers", s.listIndexers)
	g.POST("/indexers", s.createIndexer)
	g.PUT("/indexers/:id", s.updateIndexer)
	g.DELETE("/indexers/:id", s.deleteIndexer)
	g.POST("/indexers/:id/test", s.testIndexer)

	g.GET("/downloadclients", s.listClients)
	g.POST("/downloadclients", s.createClient)
	g.PUT("/downloadclients/:id", s.updateClient)
	g.DELETE("/downloadclients/:id", s.deleteClient)
	g.POST("/downloadclients/:id/test", s.testClient)

	g.GET("/notifications", s.listNotifications)
	g.POST("/notifications", s.createNotification)
	g.PUT("/notifications/:id", s.updateNotification)
	g.DELETE("/notifications/:id", s.deleteNotification)
	g.POST("/notifications/:id/test", s.testNotification)
}

// Quality profiles

func (s *Server) listProfiles(c echo.Context) error {
	profiles, err := s.deps.Profiles.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, profiles)
}

func (s *Server) getProfile(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	profile, err := s.deps.Profiles.Get(c.Request().Context(), id)
	if err != nil {
		return s.profileError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) createProfile(c echo.Context) error {
	var p quality.Profile
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	created, err := s.deps.Profiles.Create(c.Request().Context(), p)
	if err != nil {
		return s.profileError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateProfile(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	var p quality.Profile
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	updated, err := s.deps.Profiles.Update(c.Request().Context(), id, p)
	if err != nil {
		return s.profileError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteProfile(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Profiles.Delete(c.Request().Context(), id); err != nil {
		return s.profileError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) profileError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, quality.ErrProfileNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, quality.ErrInvalidProfile):
		return c.JSON(http.StatusBadRequest, errBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
}

// Custom formats

func (s *Server) listFormats(c echo.Context) error {
	rules, err := s.deps.Formats.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, rules)
}

func (s *Server) getFormat(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	rule, err := s.deps.Formats.Get(c.Request().Context(), id)
	if err != nil {
		return s.formatError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) createFormat(c echo.Context) error {
	var rule customformat.Rule
	if err := c.Bind(&rule); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	created, err := s.deps.Formats.Create(c.Request().Context(), rule)
	if err != nil {
		return s.formatError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateFormat(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	var rule customformat.Rule
	if err := c.Bind(&rule); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	updated, err := s.deps.Formats.Update(c.Request().Context(), id, rule)
	if err != nil {
		return s.formatError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteFormat(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Formats.Delete(c.Request().Context(), id); err != nil {
		return s.formatError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) formatError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, customformat.ErrFormatNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, customformat.ErrInvalidFormat):
		return c.JSON(http.StatusBadRequest, errBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
}

// Indexers

func (s *Server) listIndexers(c echo.Context) error {
	defs, err := s.deps.Indexers.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, defs)
}

func (s *Server) createIndexer(c echo.Context) error {
	var def indexer.Definition
	if err := c.Bind(&def); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	created, err := s.deps.Indexers.Create(c.Request().Context(), def)
	if err != nil {
		return s.indexerError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateIndexer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	var def indexer.Definition
	if err := c.Bind(&def); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	updated, err := s.deps.Indexers.Update(c.Request().Context(), id, def)
	if err != nil {
		return s.indexerError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteIndexer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Indexers.Delete(c.Request().Context(), id); err != nil {
		return s.indexerError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) testIndexer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Indexers.Test(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) indexerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, indexer.ErrIndexerNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, indexer.ErrUnknownType):
		return c.JSON(http.StatusBadRequest, errBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
}

// Download clients

func (s *Server) listClients(c echo.Context) error {
	clients, err := s.deps.Downloader.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, clients)
}

func (s *Server) createClient(c echo.Context) error {
	var cfg downloader.ClientConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	created, err := s.deps.Downloader.Create(c.Request().Context(), cfg)
	if err != nil {
		return s.clientError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateClient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	var cfg downloader.ClientConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	updated, err := s.deps.Downloader.Update(c.Request().Context(), id, cfg)
	if err != nil {
		return s.clientError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteClient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Downloader.Delete(c.Request().Context(), id); err != nil {
		return s.clientError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) testClient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	return c.JSON(http.StatusOK, s.deps.Downloader.Test(c.Request().Context(), id))
}

func (s *Server) clientError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, downloader.ErrClientNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, downloader.ErrUnknownType):
		return c.JSON(http.StatusBadRequest, errBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
}

// Notifications

func (s *Server) listNotifications(c echo.Context) error {
	configs, err := s.deps.Notifications.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
	return c.JSON(http.StatusOK, configs)
}

func (s *Server) createNotification(c echo.Context) error {
	var cfg notification.Config
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	created, err := s.deps.Notifications.Create(c.Request().Context(), cfg)
	if err != nil {
		return s.notificationError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) updateNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	var cfg notification.Config
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	updated, err := s.deps.Notifications.Update(c.Request().Context(), id, cfg)
	if err != nil {
		return s.notificationError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Notifications.Delete(c.Request().Context(), id); err != nil {
		return s.notificationError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) testNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err))
	}
	if err := s.deps.Notifications.Test(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusOK, map[string]any{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) notificationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, notification.ErrNotificationNotFound):
		return c.JSON(http.StatusNotFound, errBody(err))
	case errors.Is(err, notification.ErrUnknownType), errors.Is(err, notification.ErrInvalidSettings):
		return c.JSON(http.StatusBadRequest, errBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errBody(err))
	}
}
