package notify

import (
	"time"

	"github.com/backstead/backstead/internal/logging"
	"github.com/backstead/backstead/internal/websocket"
)

// Event is one lifecycle notification emitted by the engine. Events are
// best effort; a failed delivery never changes the outcome of the
// operation that produced it.
type Event struct {
	Type     string         `json:"type"`
	ServerID string         `json:"server_id,omitempty"`
	Subject  string         `json:"subject,omitempty"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Time     time.Time      `json:"time"`
}

// Event types emitted by the engine.
const (
	EventScanCompleted     = "scan.completed"
	EventScanFailed        = "scan.failed"
	EventBackupCompleted   = "backup.completed"
	EventBackupFailed      = "backup.failed"
	EventRestoreCompleted  = "restore.completed"
	EventRestoreFailed     = "restore.failed"
	EventRestoreRolledBack = "restore.rolled_back"
	EventDiskWarning       = "health.disk_warning"
	EventDiskCritical      = "health.disk_critical"
	EventServerOffline     = "health.server_offline"
)

// Notifier delivers events to an interested party.
type Notifier interface {
	Notify(event Event)
}

// Fanout delivers each event to every registered notifier.
type Fanout struct {
	notifiers []Notifier
}

func NewFanout(notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers}
}

func (f *Fanout) Notify(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	for _, n := range f.notifiers {
		n.Notify(event)
	}
}

// LogNotifier writes events to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(event Event) {
	logging.L().Info("event",
		"type", event.Type,
		"server_id", event.ServerID,
		"subject", event.Subject,
		"message", event.Message,
	)
}

// HubNotifier pushes events to WebSocket subscribers. Events go to the
// server's own room and to the catch-all "events" room.
type HubNotifier struct {
	Hub *websocket.Hub
}

func (n *HubNotifier) Notify(event Event) {
	msg := &websocket.Message{
		Type:      event.Type,
		Payload:   event,
		Timestamp: event.Time,
	}
	if event.ServerID != "" {
		n.Hub.BroadcastToRoom(event.ServerID, msg)
	}
	n.Hub.BroadcastToRoom("events", msg)
}

// Recorder captures events for tests.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Notify(event Event) {
	r.Events = append(r.Events, event)
}

// Types returns the event types seen so far, in order.
func (r *Recorder) Types() []string {
	types := make([]string, len(r.Events))
	for i, e := range r.Events {
		types[i] = e.Type
	}
	return types
}
