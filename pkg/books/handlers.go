package books

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/models"
)

type handler struct {
	bookService *Service
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListBooksQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	books, total, err := h.bookService.ListBooksWithTotal(ctx, ListBooksOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		LibraryID: params.LibraryID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Books []*models.Book `json:"books"`
		Total int            `json:"total"`
	}{books, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}

	// Bind params.
	params := UpdateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateBookOptions{Columns: []string{}}

	if params.Title != nil && *params.Title != book.Title {
		book.Title = *params.Title
		opts.Columns = append(opts.Columns, "title")
	}
	if params.Author != nil {
		book.Author = params.Author
		opts.Columns = append(opts.Columns, "author")
	}
	if params.Series != nil {
		book.Series = params.Series
		opts.Columns = append(opts.Columns, "series")
	}

	err = h.bookService.UpdateBook(ctx, book, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	book, err = h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &id,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

// updateFile toggles per-file flags. The track order itself is recomputed on
// the next scan.
func (h *handler) updateFile(c echo.Context) error {
	ctx := c.Request().Context()
	bookID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Book")
	}
	fileID, err := strconv.Atoi(c.Param("fileID"))
	if err != nil {
		return errcodes.NotFound("File")
	}

	// Bind params.
	params := UpdateFilePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{
		ID: &bookID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	var file *models.AudioFile
	for _, af := range book.AudioFiles {
		if af.ID == fileID {
			file = af
			break
		}
	}
	if file == nil {
		return errcodes.NotFound("File")
	}

	opts := UpdateAudioFileOptions{Columns: []string{}}
	if params.Exclude != nil && *params.Exclude != file.Exclude {
		file.Exclude = *params.Exclude
		opts.Columns = append(opts.Columns, "exclude")
	}
	if params.ManuallyVerified != nil && *params.ManuallyVerified != file.ManuallyVerified {
		file.ManuallyVerified = *params.ManuallyVerified
		opts.Columns = append(opts.Columns, "manually_verified")
	}

	err = h.bookService.UpdateAudioFile(ctx, file, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, file))
}
