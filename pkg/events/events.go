// Package events broadcasts server events to connected clients. The
// Broadcaster port keeps the playback and progress engines decoupled from
// the delivery mechanism; the in-process Hub delivers over a websocket endpoint.
package events

// Event names emitted by the playback and progress subsystems.
const (
	SessionStarted      = "session_started"
	SessionClosed       = "session_closed"
	OpenSessionsChanged = "open_sessions_changed"
	ProgressUpdated     = "user_item_progress_updated"
)

// Event is one broadcast message.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload"`
}

// Broadcaster is the output port used by services that need to notify
// connected clients.
type Broadcaster interface {
	// EmitToUser sends the event to every connected client of one user.
	EmitToUser(userID int, name string, payload interface{})
	// EmitToAdmins sends the event to every connected admin client.
	EmitToAdmins(name string, payload interface{})
}

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) EmitToUser(int, string, interface{}) {}
func (NopBroadcaster) EmitToAdmins(string, interface{})    {}
