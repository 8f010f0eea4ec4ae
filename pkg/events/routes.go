package events

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers the event stream route on a
// pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, hub *Hub) {
	h := newHandler(hub)

	g.GET("", h.stream)
}
