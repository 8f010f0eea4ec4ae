package playback

import (
	"github.com/labstack/echo/v4"

	"github.com/kikubooks/kiku/pkg/auth"
	"github.com/kikubooks/kiku/pkg/devices"
)

// RegisterRoutesWithGroup registers the session routes on an authenticated
// group.
func RegisterRoutesWithGroup(g *echo.Group, manager *Manager, deviceSvc *devices.Service, authMiddleware *auth.Middleware) {
	h := &handler{manager: manager, deviceSvc: deviceSvc}

	g.POST("", h.start)
	g.POST("/local", h.syncLocal)
	g.GET("/open", h.open, authMiddleware.RequireAdmin)
	g.POST("/:id/sync", h.sync)
	g.POST("/:id/close", h.close)
}
