package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"

	"github.com/kikubooks/kiku/pkg/auth"
	"github.com/kikubooks/kiku/pkg/binder"
	"github.com/kikubooks/kiku/pkg/books"
	"github.com/kikubooks/kiku/pkg/config"
	"github.com/kikubooks/kiku/pkg/devices"
	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/events"
	"github.com/kikubooks/kiku/pkg/jobs"
	"github.com/kikubooks/kiku/pkg/libraries"
	"github.com/kikubooks/kiku/pkg/playback"
	"github.com/kikubooks/kiku/pkg/progress"
	"github.com/kikubooks/kiku/pkg/users"
)

func New(cfg *config.Config, db *bun.DB, hub *events.Hub, manager *playback.Manager) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	authService := auth.RegisterRoutes(e, db, cfg.JWTSecret)
	authMiddleware := auth.NewMiddleware(authService)

	registerAPIRoutes(e, db, authMiddleware, hub, manager)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

// registerAPIRoutes registers all authenticated API routes.
func registerAPIRoutes(e *echo.Echo, db *bun.DB, authMiddleware *auth.Middleware, hub *events.Hub, manager *playback.Manager) {
	api := e.Group("/api")
	api.Use(authMiddleware.Authenticate)

	libraries.RegisterRoutesWithGroup(api.Group("/libraries"), db, authMiddleware)
	books.RegisterRoutesWithGroup(api.Group("/books"), db, authMiddleware)
	jobs.RegisterRoutesWithGroup(api.Group("/jobs"), db, authMiddleware)
	users.RegisterRoutesWithGroup(api.Group("/users"), db, authMiddleware)

	deviceService := devices.NewService(db)
	playback.RegisterRoutesWithGroup(api.Group("/sessions"), manager, deviceService, authMiddleware)

	progress.RegisterRoutesWithGroup(api.Group("/me/progress"), db, hub)
	events.RegisterRoutesWithGroup(api.Group("/events"), hub)
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
