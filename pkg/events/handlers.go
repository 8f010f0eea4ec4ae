package events

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"

	"github.com/kikubooks/kiku/pkg/auth"
)

const (
	// pingInterval is how often a ping frame is sent so intermediate proxies
	// don't drop idle connections.
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

type handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func newHandler(hub *Hub) *handler {
	return &handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			// Cross-origin clients are allowed; access control is the bearer
			// token checked by the auth middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// stream upgrades the connection to a websocket, subscribes it to the hub,
// and relays events until the client disconnects.
func (h *handler) stream(c echo.Context) error {
	user := auth.UserFromEchoContext(c)

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(user.ID, user.IsAdmin)
	defer cancel()

	// The read loop discards client frames; its only job is noticing the
	// disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return nil
			}
		case event := <-events:
			msg, err := json.Marshal(event)
			if err != nil {
				return errors.WithStack(err)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return nil
			}
		}
	}
}
