package replicator

import (
	"math"
	"time"

	"github.com/mcdev12/roomsync/go/internal/models"
)

// Config holds the interpolation settings.
type Config struct {
	// Smoothing is k in current = lerp(current, target, k*dt).
	Smoothing float64 `yaml:"smoothing"`
}

// DefaultConfig returns the default interpolation settings.
func DefaultConfig() Config {
	return Config{Smoothing: 10}
}

// Replicator synchronizes one avatar. On the owner it stamps local samples with a sequence
// number; on observers it keeps the newest sample as a target and eases toward it.
type Replicator struct {
	entity    models.PeerID
	owner     models.PeerID
	isOwner   bool
	smoothing float64

	lastSeq uint64 // sent on the owner, applied on observers
	current models.AvatarState
	target  models.AvatarState
}

func newReplicator(owner models.PeerID, isOwner bool, initial models.AvatarState, seq uint64, cfg Config) *Replicator {
	return &Replicator{
		entity:    owner,
		owner:     owner,
		isOwner:   isOwner,
		smoothing: cfg.Smoothing,
		lastSeq:   seq,
		current:   initial,
		target:    initial,
	}
}

// Entity returns the avatar id.
func (r *Replicator) Entity() models.PeerID {
	return r.entity
}

// Owner returns the controlling peer.
func (r *Replicator) Owner() models.PeerID {
	return r.owner
}

// IsOwner reports whether the local peer controls this avatar.
func (r *Replicator) IsOwner() bool {
	return r.isOwner
}

// LastSeq is the last sequence sent (owner) or applied (observer).
func (r *Replicator) LastSeq() uint64 {
	return r.lastSeq
}

// Current returns the locally presented state.
func (r *Replicator) Current() models.AvatarState {
	return r.current
}

// Target returns the newest applied sample. On the owner it equals Current.
func (r *Replicator) Target() models.AvatarState {
	return r.target
}

// sample records the owner's state under the next sequence number.
func (r *Replicator) sample(state models.AvatarState, seq uint64) models.EntitySnapshot {
	r.current = state
	r.target = state
	r.lastSeq = seq
	return models.EntitySnapshot{
		EntityID: r.entity,
		Owner:    r.owner,
		Seq:      seq,
		State:    state,
	}
}

// Receive applies a remote sample. Samples for another owner and samples not newer than the
// last applied one are dropped.
func (r *Replicator) Receive(s models.EntitySnapshot) bool {
	if r.isOwner || s.Owner != r.owner || s.EntityID != r.entity {
		return false
	}
	if s.Seq <= r.lastSeq {
		return false
	}
	r.lastSeq = s.Seq
	r.target = s.State
	// Scale and input are discrete; they snap rather than ease.
	r.current.Scale = s.State.Scale
	r.current.InputHorizontal = s.State.InputHorizontal
	return true
}

// Step eases an observed avatar toward its target. Owners are driven by the local simulation
// and are left alone.
func (r *Replicator) Step(dt time.Duration) {
	if r.isOwner {
		return
	}
	t := r.smoothing * dt.Seconds()
	if t <= 0 {
		return
	}
	if t > 1 {
		t = 1
	}
	r.current.Position = r.current.Position.Lerp(r.target.Position, t)
	r.current.Angle = lerpAngle(r.current.Angle, r.target.Angle, t)
}

// lerpAngle interpolates degrees along the shorter arc.
func lerpAngle(from, to, t float64) float64 {
	delta := math.Mod(to-from, 360)
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return from + delta*t
}
