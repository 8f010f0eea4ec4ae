package progress

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/books"
	"github.com/kikubooks/kiku/pkg/events"
)

// RegisterRoutesWithGroup registers progress routes on a pre-configured
// group. All routes operate on the authenticated user's own records.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, broadcaster events.Broadcaster) {
	h := &handler{
		progressService: NewService(db, broadcaster),
		bookService:     books.NewService(db),
	}

	g.GET("", h.list)
	g.GET("/:bookID", h.retrieve)
	g.POST("/:bookID", h.update)
}
