// Package model provides data models for the application.
package model

import (
	"errors"
	"fmt"

	"github.com/kyiku/slide-textguard-back/internal/geom"
)

// ItemState is the interaction state of a text item.
type ItemState string

// Item states
const (
	StateIdle     ItemState = "idle"
	StateDragging ItemState = "dragging"
	StateEditing  ItemState = "editing"
)

// ErrInvalidTransition is returned when an item cannot move to the requested state.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines allowed state transitions.
var validTransitions = map[ItemState][]ItemState{
	StateIdle:     {StateDragging, StateEditing},
	StateDragging: {StateIdle},
	StateEditing:  {StateIdle},
}

// TextItem is one positioned text line on a slide.
type TextItem struct {
	ID       string
	Rect     geom.Rect
	MaxWidth float64
	State    ItemState

	// Invalid is set when the last check found the item violating a layout rule.
	Invalid bool
	// Violations names the rules broken by the last check.
	Violations []string
}

// NewTextItem creates an idle item.
func NewTextItem(id string, rect geom.Rect) *TextItem {
	return &TextItem{
		ID:       id,
		Rect:     rect,
		MaxWidth: rect.Width,
		State:    StateIdle,
	}
}

// CanTransitionTo checks if the item can transition to the given state.
func (t *TextItem) CanTransitionTo(state ItemState) bool {
	allowedStates, ok := validTransitions[t.State]
	if !ok {
		return false
	}

	for _, allowed := range allowedStates {
		if allowed == state {
			return true
		}
	}
	return false
}

// TransitionTo moves the item to state or returns ErrInvalidTransition.
func (t *TextItem) TransitionTo(state ItemState) error {
	if !t.CanTransitionTo(state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, state)
	}
	t.State = state
	return nil
}

// Held reports whether the user currently holds the item.
// Held items are never moved automatically.
func (t *TextItem) Held() bool {
	return t.State == StateDragging || t.State == StateEditing
}

// Placement returns the persistence record for the item.
func (t *TextItem) Placement() ItemPlacement {
	return ItemPlacement{
		ID:       t.ID,
		X:        t.Rect.X,
		Y:        t.Rect.Y,
		MaxWidth: t.MaxWidth,
	}
}

// ItemPlacement is the record emitted when an item's position is committed.
type ItemPlacement struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	MaxWidth float64 `json:"maxWidth"`
}
