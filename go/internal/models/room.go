package models

import (
	"fmt"
	"math"
)

// RoomPhase defines the phase of the room's game clock.
type RoomPhase int

const (
	PhasePlaying RoomPhase = iota
	PhaseExtension
)

// String implements fmt.Stringer
func (p RoomPhase) String() string {
	switch p {
	case PhasePlaying:
		return "PLAYING"
	case PhaseExtension:
		return "EXTENSION"
	default:
		return fmt.Sprintf("RoomPhase(%d)", int(p))
	}
}

// Valid reports whether p is a known phase.
func (p RoomPhase) Valid() bool {
	return p == PhasePlaying || p == PhaseExtension
}

// RoomClock is the replicated countdown. Only the authority mutates it; everyone else copies
// the value broadcast by the authority.
type RoomClock struct {
	TimeLeft float64   `json:"time_left"` // seconds
	Phase    RoomPhase `json:"phase"`
}

// TimeLeftText renders the remaining time as MM:SS, rounding partial seconds up.
func (c RoomClock) TimeLeftText() string {
	secs := int(math.Ceil(c.TimeLeft))
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
