package users

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/auth"
)

// RegisterRoutesWithGroup registers user routes on a pre-configured group.
// Listing and mutating users is admin-only; password reset is open to any
// authenticated user for their own account.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	h := &handler{
		userService: NewService(db),
	}

	g.GET("", h.list, authMiddleware.RequireAdmin)
	g.GET("/:id", h.retrieve, authMiddleware.RequireAdmin)
	g.POST("", h.create, authMiddleware.RequireAdmin)
	g.POST("/:id", h.update, authMiddleware.RequireAdmin)
	g.DELETE("/:id", h.deactivate, authMiddleware.RequireAdmin)
	g.POST("/:id/reset-password", h.resetPassword)
}
