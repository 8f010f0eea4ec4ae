package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestHub(t *testing.T) {
	t.Run("emit to user reaches only that user", func(t *testing.T) {
		hub := NewHub()
		aliceCh, cancelAlice := hub.Subscribe(1, false)
		defer cancelAlice()
		bobCh, cancelBob := hub.Subscribe(2, false)
		defer cancelBob()

		hub.EmitToUser(1, SessionClosed, map[string]int{"id": 7})

		alice := drain(aliceCh)
		require.Len(t, alice, 1)
		assert.Equal(t, SessionClosed, alice[0].Name)
		assert.Empty(t, drain(bobCh))
	})

	t.Run("emit to admins reaches only admins", func(t *testing.T) {
		hub := NewHub()
		adminCh, cancelAdmin := hub.Subscribe(1, true)
		defer cancelAdmin()
		userCh, cancelUser := hub.Subscribe(2, false)
		defer cancelUser()

		hub.EmitToAdmins(OpenSessionsChanged, nil)

		require.Len(t, drain(adminCh), 1)
		assert.Empty(t, drain(userCh))
	})

	t.Run("unsubscribed client receives nothing", func(t *testing.T) {
		hub := NewHub()
		ch, cancel := hub.Subscribe(1, false)
		cancel()

		hub.EmitToUser(1, ProgressUpdated, nil)
		assert.Empty(t, drain(ch))
	})

	t.Run("slow client drops events instead of blocking", func(t *testing.T) {
		hub := NewHub()
		ch, cancel := hub.Subscribe(1, false)
		defer cancel()

		for i := 0; i < subscriberBuffer+5; i++ {
			hub.EmitToUser(1, ProgressUpdated, i)
		}
		assert.Len(t, drain(ch), subscriberBuffer)
	})
}
