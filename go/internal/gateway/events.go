package gateway

import (
	"fmt"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/session"
)

// EventType identifies frames pushed to WebSocket clients
type EventType string

const (
	EventTypeView    EventType = "view"
	EventTypeError   EventType = "error"
	EventTypeCommand EventType = "command_ok"
)

// RoomEvent is a frame pushed to WebSocket clients
type RoomEvent struct {
	Type    EventType     `json:"type"`
	View    *session.View `json:"view,omitempty"`
	Command string        `json:"command,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// ClientCommand is a frame received from a WebSocket client
type ClientCommand struct {
	Type      string             `json:"type" jsonschema:"enum=deploy,enum=leave,enum=destroy,enum=jump,enum=shoot,enum=change_weapon,enum=avatar,enum=damage,enum=pickup"`
	Direction models.Vec2        `json:"direction"`
	Angle     float64            `json:"angle"`
	Index     int                `json:"index"`
	State     models.AvatarState `json:"state"`
	Target    models.PeerID      `json:"target"`
	Power     int                `json:"power"`
	Bonus     int                `json:"bonus"`
}

// ToCommand maps a client frame onto a session command.
func (c ClientCommand) ToCommand() (session.Command, error) {
	switch c.Type {
	case "deploy":
		return session.DeployCommand{}, nil
	case "leave":
		return session.LeaveCommand{}, nil
	case "destroy":
		return session.DestroyAvatarCommand{}, nil
	case "jump":
		return session.JumpCommand{}, nil
	case "shoot":
		return session.ShootCommand{Direction: c.Direction, Angle: c.Angle}, nil
	case "change_weapon":
		return session.ChangeWeaponCommand{Index: c.Index}, nil
	case "avatar":
		return session.AvatarCommand{State: c.State}, nil
	case "damage":
		return session.DealDamageCommand{Target: c.Target, Power: c.Power}, nil
	case "pickup":
		return session.PickupHealthCommand{Bonus: c.Bonus}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", c.Type)
	}
}
