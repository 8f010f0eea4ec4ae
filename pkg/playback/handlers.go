package playback

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kikubooks/kiku/pkg/auth"
	"github.com/kikubooks/kiku/pkg/devices"
	"github.com/kikubooks/kiku/pkg/errcodes"
	"github.com/kikubooks/kiku/pkg/models"
)

type handler struct {
	manager   *Manager
	deviceSvc *devices.Service
}

func (h *handler) start(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	params := StartPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	device, err := h.resolveDevice(c, user, params.DeviceInfo)
	if err != nil {
		return err
	}

	session, err := h.manager.Start(ctx, user, device, params.BookID, StartOptions{
		EpisodeID:          params.EpisodeID,
		MediaPlayer:        params.MediaPlayer,
		ForceDirectPlay:    params.ForceDirectPlay,
		ForceTranscode:     params.ForceTranscode,
		SupportedMimeTypes: params.SupportedMimeTypes,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, session)
}

func (h *handler) sync(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	params := SyncParams{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	record, err := h.manager.Sync(ctx, user.ID, c.Param("id"), SyncPayload{
		CurrentTime:  params.CurrentTime,
		TimeListened: params.TimeListened,
		Duration:     params.Duration,
	})
	if err != nil {
		// The session stays open; the client should retry or close.
		if errors.Is(err, ErrItemNotFound) {
			return errcodes.NotFound("Library item")
		}
		return err
	}

	return c.JSON(http.StatusOK, SyncResponse{Progress: record})
}

func (h *handler) close(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	params := ClosePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	var syncData *SyncPayload
	if params.SyncData != nil {
		syncData = &SyncPayload{
			CurrentTime:  params.SyncData.CurrentTime,
			TimeListened: params.SyncData.TimeListened,
			Duration:     params.SyncData.Duration,
		}
	}

	if err := h.manager.Close(ctx, user.ID, c.Param("id"), syncData); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *handler) syncLocal(c echo.Context) error {
	ctx := c.Request().Context()
	user := auth.UserFromEchoContext(c)

	params := LocalSyncPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	device, err := h.resolveDevice(c, user, params.DeviceInfo)
	if err != nil {
		return err
	}

	record, err := h.manager.SyncLocal(ctx, user, device, params.Session)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, SyncResponse{Progress: record})
}

func (h *handler) open(c echo.Context) error {
	return c.JSON(http.StatusOK, OpenSessionsResponse{Sessions: h.manager.OpenSessions()})
}

func (h *handler) resolveDevice(c echo.Context, user *models.User, info *devices.ClientDeviceInfo) (*models.Device, error) {
	return h.deviceSvc.Resolve(c.Request().Context(), user.ID, c.RealIP(), c.Request().UserAgent(), info)
}
