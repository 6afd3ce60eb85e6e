package websocket

import (
	"encoding/json"
	"testing"
)

func newHubClient(h *Hub, userID uint, buffer int) *Client {
	c := &Client{
		hub:           h,
		send:          make(chan []byte, buffer),
		connID:        "conn",
		userID:        userID,
		authenticated: true,
	}
	h.Register(c)
	return c
}

func pending(c *Client) int { return len(c.send) }

func TestHub_DeliverExcludesSender(t *testing.T) {
	h := NewHub()
	sender := newHubClient(h, 1, 8)
	other := newHubClient(h, 2, 8)
	outsider := newHubClient(h, 3, 8)

	h.Subscribe(sender, "general")
	h.Subscribe(other, "general")

	n := h.Deliver("general", EventNewMessage, map[string]string{"content": "hi"}, 1)
	if n != 1 {
		t.Fatalf("Deliver() = %d, want 1", n)
	}
	if pending(sender) != 0 {
		t.Error("sender received its own broadcast")
	}
	if pending(other) != 1 {
		t.Error("room member did not receive broadcast")
	}
	if pending(outsider) != 0 {
		t.Error("non-subscribed connection received broadcast")
	}
}

func TestHub_DeliverSkipsSlowRecipient(t *testing.T) {
	h := NewHub()
	// Unbuffered send channel with no reader: always full.
	slow := newHubClient(h, 1, 0)
	fast := newHubClient(h, 2, 8)
	h.Subscribe(slow, "general")
	h.Subscribe(fast, "general")

	n := h.Deliver("general", EventNewMessage, "payload", 0)
	if n != 1 {
		t.Fatalf("Deliver() = %d, want 1 (slow recipient skipped)", n)
	}
	if pending(fast) != 1 {
		t.Error("healthy recipient starved by slow one")
	}
}

func TestHub_DeliverToUser(t *testing.T) {
	h := NewHub()
	phone := newHubClient(h, 1, 8)
	laptop := newHubClient(h, 1, 8)
	other := newHubClient(h, 2, 8)

	n := h.DeliverToUser(1, EventMessageStatusUpdate, "payload")
	if n != 2 {
		t.Fatalf("DeliverToUser() = %d, want 2", n)
	}
	if pending(phone) != 1 || pending(laptop) != 1 {
		t.Error("personal channel missed one of the user's connections")
	}
	if pending(other) != 0 {
		t.Error("personal channel leaked to another user")
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	h := NewHub()
	a := newHubClient(h, 1, 8)
	b := newHubClient(h, 2, 8)
	c := newHubClient(h, 3, 8)

	n := h.BroadcastAll(EventUserOnline, "payload", 2)
	if n != 2 {
		t.Fatalf("BroadcastAll() = %d, want 2", n)
	}
	if pending(a) != 1 || pending(c) != 1 {
		t.Error("broadcast missed a connection")
	}
	if pending(b) != 0 {
		t.Error("excluded user received broadcast")
	}
}

func TestHub_UnregisterCleansUp(t *testing.T) {
	h := NewHub()
	c := newHubClient(h, 1, 8)
	h.Subscribe(c, "general")

	h.Unregister(c)

	if n := h.Deliver("general", EventNewMessage, "payload", 0); n != 0 {
		t.Errorf("Deliver() = %d to unregistered client", n)
	}
	if h.Send(c, EventConnected, "payload") {
		t.Error("Send() succeeded for unregistered client")
	}
	// Idempotent.
	h.Unregister(c)
}

func TestHub_EnvelopeFraming(t *testing.T) {
	h := NewHub()
	c := newHubClient(h, 1, 8)

	if !h.Send(c, EventConnected, ConnectedPayload{Status: "connected", Authenticated: false}) {
		t.Fatal("Send() = false")
	}

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(<-c.send, &env); err != nil {
		t.Fatalf("decoding frame: %v", err)
	}
	if env.Type != EventConnected {
		t.Errorf("frame type = %q, want %q", env.Type, EventConnected)
	}
}
