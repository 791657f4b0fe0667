// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Player is a person that publishes, verifies, creates or completes demons.
type Player struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Banned bool   `json:"banned"`
}

// Demon is one ranked level. A nil Position means the demon is legacy.
type Demon struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Position    *int     `json:"position"`
	Requirement int      `json:"requirement"`
	Video       string   `json:"video,omitempty"`
	Publisher   Player   `json:"publisher"`
	Verifier    Player   `json:"verifier"`
	Creators    []Player `json:"creators,omitempty"`
}

// Legacy reports whether the demon has no active position.
func (d Demon) Legacy() bool { return d.Position == nil }

// MinimalDemon is the subset of a Demon embedded in other resources.
type MinimalDemon struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Position *int   `json:"position"`
}

// Minimal projects d onto a MinimalDemon.
func (d Demon) Minimal() MinimalDemon {
	return MinimalDemon{ID: d.ID, Name: d.Name, Position: d.Position}
}

// NewDemon carries the caller-supplied fields of an insert.
// Players are referenced by name and created on first use.
type NewDemon struct {
	Name        string   `json:"name" validate:"required,max=150"`
	Position    int      `json:"position"`
	Requirement int      `json:"requirement"`
	Video       string   `json:"video,omitempty" validate:"omitempty,url"`
	Publisher   string   `json:"publisher" validate:"required"`
	Verifier    string   `json:"verifier" validate:"required"`
	Creators    []string `json:"creators,omitempty" validate:"dive,required"`
}

// EventKind distinguishes the first placement of a demon from later changes.
type EventKind string

const (
	EventAddition     EventKind = "addition"
	EventModification EventKind = "modification"
)

// PositionEvent is one entry of the append-only position log.
// A nil Position records a removal to legacy.
type PositionEvent struct {
	DemonID  int64     `json:"demon_id"`
	Position *int      `json:"position"`
	Time     time.Time `json:"time"`
	Kind     EventKind `json:"kind"`
}

// Movement is one row of a demon's position history.
type Movement struct {
	Time     time.Time `json:"time"`
	Position int       `json:"position"`
	Kind     EventKind `json:"kind"`
}

// TimeShiftedDemon is a demon as it was ranked at a past instant.
// CurrentPosition is always the live position, nil only when the demon is
// now legacy; Moved reports whether it differs from Position.
type TimeShiftedDemon struct {
	ID              int64  `json:"id"`
	Position        int    `json:"position"`
	Name            string `json:"name"`
	Publisher       string `json:"publisher"`
	Requirement     int    `json:"requirement"`
	CurrentPosition *int   `json:"current_position"`
}

// Moved reports whether the live position differs from the historical one.
func (d TimeShiftedDemon) Moved() bool {
	return d.CurrentPosition == nil || *d.CurrentPosition != d.Position
}

// Annotation renders the "Currently" hint shown next to a time-shifted entry.
// It is empty when the demon has not moved since.
func (d TimeShiftedDemon) Annotation(extendedListSize int) string {
	if !d.Moved() {
		return ""
	}
	if d.CurrentPosition == nil || *d.CurrentPosition > extendedListSize {
		return "Currently Legacy"
	}
	return fmt.Sprintf("Currently #%d", *d.CurrentPosition)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
