package models

import "time"

// ActionKind names a one-shot avatar action.
type ActionKind string

const (
	ActionJump         ActionKind = "jump"
	ActionShoot        ActionKind = "shoot"
	ActionChangeWeapon ActionKind = "change_weapon"
)

// AvatarAction is a discrete action performed by a remote avatar, kept for presentation.
type AvatarAction struct {
	Peer      PeerID     `json:"peer"`
	Kind      ActionKind `json:"kind"`
	Direction Vec2       `json:"direction,omitempty"`
	Angle     float64    `json:"angle,omitempty"`
	Weapon    int        `json:"weapon,omitempty"`
}

// ItemDrop is a pickup dropped by the authority.
type ItemDrop struct {
	Index     int       `json:"index"`
	DroppedBy PeerID    `json:"dropped_by"`
	At        time.Time `json:"at"`
}
