package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kyiku/slide-textguard-back/internal/controller"
)

// Incoming event types.
const (
	EventDragStart = "drag_start"
	EventDragMove  = "drag_move"
	EventResize    = "resize"
	EventRelease   = "release"
	EventEditStart = "edit_start"
	EventEditEnd   = "edit_end"
	EventPing      = "ping"
)

// Outgoing message types.
const (
	MessageItemUpdate   = "item_update"
	MessageLayoutUpdate = "layout_update"
	MessagePong         = "pong"
	MessageError        = "error"
)

var (
	// ErrUnknownEvent is returned for an event type the server does not handle.
	ErrUnknownEvent = errors.New("unknown event type")
	// ErrMissingItem is returned when an item event has no item_id.
	ErrMissingItem = errors.New("item_id is required")
)

// Event is one pointer or editing event sent by the editor.
type Event struct {
	Type   string  `json:"type"`
	ItemID string  `json:"item_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Message is sent back to the editor.
type Message struct {
	Type    string                   `json:"type"`
	Item    *controller.ItemUpdate   `json:"item,omitempty"`
	Layout  *controller.ReflowResult `json:"layout,omitempty"`
	Code    string                   `json:"code,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// ParseEvent decodes and validates an incoming event.
func ParseEvent(message []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(message, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to parse event: %w", err)
	}

	switch ev.Type {
	case EventPing:
		return ev, nil
	case EventDragStart, EventDragMove, EventResize, EventRelease, EventEditStart, EventEditEnd:
		if ev.ItemID == "" {
			return Event{}, fmt.Errorf("%w: %s", ErrMissingItem, ev.Type)
		}
		return ev, nil
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
}

func itemMessage(u controller.ItemUpdate) Message {
	return Message{Type: MessageItemUpdate, Item: &u}
}

func layoutMessage(r controller.ReflowResult) Message {
	return Message{Type: MessageLayoutUpdate, Layout: &r}
}

func errorMessage(code, message string) Message {
	return Message{Type: MessageError, Code: code, Message: message}
}
