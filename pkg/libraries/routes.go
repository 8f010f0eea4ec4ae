package libraries

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/auth"
	"github.com/kikubooks/kiku/pkg/jobs"
)

// RegisterRoutesWithGroup registers library routes on a pre-configured
// group. Mutations are admin-only.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, authMiddleware *auth.Middleware) {
	h := &handler{
		libraryService: NewService(db),
		jobService:     jobs.NewService(db),
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("", h.create, authMiddleware.RequireAdmin)
	g.POST("/:id", h.update, authMiddleware.RequireAdmin)
}
