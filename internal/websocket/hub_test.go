package websocket

import (
	"testing"
)

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "client-1",
		UserID:   "user-1",
		Username: "tester",
		Room:     "srv-1",
		Send:     make(chan *Message, 1),
		Hub:      hub,
	}

	hub.registerClient(client)
	if hub.RoomSize("srv-1") != 1 {
		t.Fatalf("expected room size 1")
	}

	hub.unregisterClient(client)
	if hub.RoomSize("srv-1") != 0 {
		t.Fatalf("expected room to be empty")
	}
}

func TestHubBroadcastToRoom(t *testing.T) {
	hub := NewHub()
	client := &Client{
		ID:       "client-1",
		UserID:   "user-1",
		Username: "tester",
		Room:     "srv-1",
		Send:     make(chan *Message, 1),
		Hub:      hub,
	}

	hub.registerClient(client)

	message := &Message{Type: "backup_completed"}
	hub.broadcastToRoom(&broadcastMessage{Room: "srv-1", Message: message})

	select {
	case received := <-client.Send:
		if received.Type != "backup_completed" {
			t.Fatalf("expected backup_completed message")
		}
	default:
		t.Fatalf("expected message to be delivered")
	}
}
