package progress

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kikubooks/kiku/pkg/auth"
	"github.com/kikubooks/kiku/pkg/books"
	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/models"
)

type handler struct {
	progressService *Service
	bookService     *books.Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	records, err := h.progressService.List(ctx, user.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Progress []*models.MediaProgress `json:"progress"`
	}{records}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	bookID, err := strconv.Atoi(c.Param("bookID"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	// Bind params.
	params := RetrieveProgressQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	record, err := h.progressService.Retrieve(ctx, user.ID, bookID, params.EpisodeID)
	if err != nil {
		return errors.WithStack(err)
	}
	if record == nil {
		return errcodes.NotFound("Progress")
	}

	return errors.WithStack(c.JSON(http.StatusOK, record))
}

// update applies a manual progress update. Unlike session syncs, the server
// clock is the update timestamp, so a manual change always wins over
// anything reported earlier.
func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	bookID, err := strconv.Atoi(c.Param("bookID"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	// Bind params.
	params := UpdateProgressPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{
		ID: &bookID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	update := Update{
		BookID:                    book.ID,
		EpisodeID:                 params.EpisodeID,
		CurrentTimeSeconds:        params.CurrentTimeSeconds,
		Progress:                  params.Progress,
		IsFinished:                params.IsFinished,
		HideFromContinueListening: params.HideFromContinueListening,
		LastUpdate:                time.Now(),
	}

	record, _, err := h.progressService.ApplyUpdate(ctx, user.ID, update, PolicyForLibrary(book.Library), "")
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, record))
}
