package books

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/auth"
)

// RegisterRoutesWithGroup registers book routes on a pre-configured group.
// Mutations are admin-only.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	h := &handler{
		bookService: NewService(db),
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("/:id", h.update, authMiddleware.RequireAdmin)
	g.POST("/:id/files/:fileID", h.updateFile, authMiddleware.RequireAdmin)
}
