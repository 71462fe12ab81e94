package rpc

import (
	"github.com/mcdev12/roomsync/go/internal/models"
)

// Kind identifies a message variant on the wire.
type Kind string

const (
	KindAddRecord    Kind = "AddRecord"
	KindSetHealth    Kind = "SetHealth"
	KindSetScore     Kind = "SetScore"
	KindDie          Kind = "Die"
	KindStartGame    Kind = "StartGame"
	KindEndGame      Kind = "EndGame"
	KindClockSync    Kind = "ClockSync"
	KindSnapshot     Kind = "Snapshot"
	KindSpawn        Kind = "Spawn"
	KindDespawn      Kind = "Despawn"
	KindJump         Kind = "Jump"
	KindShoot        Kind = "Shoot"
	KindChangeWeapon Kind = "ChangeWeapon"
	KindDropItem     Kind = "DropItem"
)

// Message is the closed set of remote calls exchanged between peers. The unexported marker
// keeps the set closed to this package.
type Message interface {
	Kind() Kind
	isMessage()
}

// AddRecord announces a peer's player record. Sent AllBuffered on join.
type AddRecord struct {
	PeerID models.PeerID `json:"peer_id"`
	Name   string        `json:"name"`
}

// SetHealth sets the health of Target. The sender is the attacker when the value drops.
type SetHealth struct {
	Target models.PeerID `json:"target"`
	Value  int           `json:"value"`
}

// SetScore sets the sender's own score.
type SetScore struct {
	Value int `json:"value"`
}

// Die is sent by the victim once its avatar has been despawned by lethal damage.
type Die struct {
	Attacker models.PeerID `json:"attacker"`
}

// StartGame is sent by the authority when the extension ends. Seq is the clock sequence the
// transition was stamped with; ClockSync frames at or below it predate the transition.
type StartGame struct {
	Seq uint64 `json:"seq"`
}

// EndGame is sent by the authority when the playing phase runs out.
type EndGame struct {
	Seq uint64 `json:"seq"`
}

// ClockSync carries the authority's canonical clock. Sent on the unreliable channel every tick.
type ClockSync struct {
	Clock models.RoomClock `json:"clock"`
	Seq   uint64           `json:"seq"`
}

// Snapshot carries one avatar sample on the unreliable channel.
type Snapshot struct {
	Snapshot models.EntitySnapshot `json:"snapshot"`
}

// Spawn announces the sender's avatar at an initial state. Seq is the owner sequence the
// spawn is stamped with; samples of this life carry higher values.
type Spawn struct {
	State models.AvatarState `json:"state"`
	Seq   uint64             `json:"seq"`
}

// Despawn removes the sender's avatar. LastSeq is the final sequence of that life.
type Despawn struct {
	LastSeq uint64 `json:"last_seq"`
}

// Jump is a one-shot avatar action.
type Jump struct{}

// Shoot is a one-shot avatar action carrying the aim.
type Shoot struct {
	Direction models.Vec2 `json:"direction"`
	Angle     float64     `json:"angle"`
}

// ChangeWeapon switches the sender's active weapon.
type ChangeWeapon struct {
	Index int `json:"index"`
}

// DropItem is sent by the authority to drop a pickup of the given catalog index.
type DropItem struct {
	Index int `json:"index"`
}

func (AddRecord) Kind() Kind    { return KindAddRecord }
func (SetHealth) Kind() Kind    { return KindSetHealth }
func (SetScore) Kind() Kind     { return KindSetScore }
func (Die) Kind() Kind          { return KindDie }
func (StartGame) Kind() Kind    { return KindStartGame }
func (EndGame) Kind() Kind      { return KindEndGame }
func (ClockSync) Kind() Kind    { return KindClockSync }
func (Snapshot) Kind() Kind     { return KindSnapshot }
func (Spawn) Kind() Kind        { return KindSpawn }
func (Despawn) Kind() Kind      { return KindDespawn }
func (Jump) Kind() Kind         { return KindJump }
func (Shoot) Kind() Kind        { return KindShoot }
func (ChangeWeapon) Kind() Kind { return KindChangeWeapon }
func (DropItem) Kind() Kind     { return KindDropItem }

func (AddRecord) isMessage()    {}
func (SetHealth) isMessage()    {}
func (SetScore) isMessage()     {}
func (Die) isMessage()          {}
func (StartGame) isMessage()    {}
func (EndGame) isMessage()      {}
func (ClockSync) isMessage()    {}
func (Snapshot) isMessage()     {}
func (Spawn) isMessage()        {}
func (Despawn) isMessage()      {}
func (Jump) isMessage()         {}
func (Shoot) isMessage()        {}
func (ChangeWeapon) isMessage() {}
func (DropItem) isMessage()     {}

// Unreliable reports whether a message belongs on the continuous-state channel.
func Unreliable(m Message) bool {
	switch m.(type) {
	case ClockSync, Snapshot:
		return true
	default:
		return false
	}
}
