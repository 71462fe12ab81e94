package session

import (
	"github.com/mcdev12/roomsync/go/internal/models"
)

// Command is a request queued from another goroutine and applied in the input phase of the
// next tick.
type Command interface {
	apply(s *Session) error
}

type DeployCommand struct{}

type LeaveCommand struct{}

// DestroyAvatarCommand removes the local avatar without a death, e.g. after a fall out of the map.
type DestroyAvatarCommand struct{}

type JumpCommand struct{}

type ShootCommand struct {
	Direction models.Vec2
	Angle     float64
}

type ChangeWeaponCommand struct {
	Index int
}

// AvatarCommand feeds the local simulation's avatar state.
type AvatarCommand struct {
	State models.AvatarState
}

type DealDamageCommand struct {
	Target models.PeerID
	Power  int
}

type PickupHealthCommand struct {
	Bonus int
}

func (DeployCommand) apply(s *Session) error {
	return s.RequestDeploy()
}

func (LeaveCommand) apply(s *Session) error {
	return s.RequestLeave()
}

func (DestroyAvatarCommand) apply(s *Session) error {
	return s.DestroyAvatar()
}

func (JumpCommand) apply(s *Session) error {
	return s.Jump()
}

func (c ShootCommand) apply(s *Session) error {
	return s.Shoot(c.Direction, c.Angle)
}

func (c ChangeWeaponCommand) apply(s *Session) error {
	return s.ChangeWeapon(c.Index)
}

func (c AvatarCommand) apply(s *Session) error {
	return s.SetAvatarState(c.State)
}

func (c DealDamageCommand) apply(s *Session) error {
	return s.DealDamage(c.Target, c.Power)
}

func (c PickupHealthCommand) apply(s *Session) error {
	return s.PickupHealth(c.Bonus)
}

type queuedCommand struct {
	cmd   Command
	reply chan error
}
