package replicator

import (
	"sort"
	"time"

	"github.com/mcdev12/roomsync/go/internal/models"
)

// Registry holds the replicators of every live avatar seen by one peer.
type Registry struct {
	local   models.PeerID
	cfg     Config
	avatars map[models.PeerID]*Replicator

	// localSeq survives respawns so observers never confuse a new life with an old one.
	localSeq uint64
	// tombstones hold the last sequence of a despawned avatar; late samples at or below it
	// must not bring the avatar back.
	tombstones map[models.PeerID]uint64
	dropped    uint64
}

// NewRegistry creates a registry for the local peer.
func NewRegistry(local models.PeerID, cfg Config) *Registry {
	return &Registry{
		local:      local,
		cfg:        cfg,
		avatars:    make(map[models.PeerID]*Replicator),
		tombstones: make(map[models.PeerID]uint64),
	}
}

// SpawnLocal creates the local avatar. It returns the sequence the spawn is stamped with.
func (g *Registry) SpawnLocal(initial models.AvatarState) (*Replicator, uint64) {
	g.localSeq++
	r := newReplicator(g.local, true, initial, g.localSeq, g.cfg)
	g.avatars[g.local] = r
	return r, g.localSeq
}

// SampleLocal stamps the local avatar's current state. ok is false when no local avatar exists.
func (g *Registry) SampleLocal(state models.AvatarState) (models.EntitySnapshot, bool) {
	r, exists := g.avatars[g.local]
	if !exists {
		return models.EntitySnapshot{}, false
	}
	g.localSeq++
	return r.sample(state, g.localSeq), true
}

// Local returns the local avatar, if spawned.
func (g *Registry) Local() (*Replicator, bool) {
	r, ok := g.avatars[g.local]
	return r, ok
}

// LocalSeq returns the last sequence stamped by the local peer.
func (g *Registry) LocalSeq() uint64 {
	return g.localSeq
}

// Observe creates or resets the replicator of a remote avatar announced by a spawn.
func (g *Registry) Observe(owner models.PeerID, initial models.AvatarState, seq uint64) *Replicator {
	if seq <= g.tombstones[owner] {
		seq = g.tombstones[owner]
	}
	delete(g.tombstones, owner)
	r := newReplicator(owner, false, initial, seq, g.cfg)
	g.avatars[owner] = r
	return r
}

// Receive routes a remote sample. An unknown avatar is created from the sample itself so
// late joiners pick up avatars spawned before they arrived.
func (g *Registry) Receive(s models.EntitySnapshot) bool {
	if s.Owner == g.local || s.EntityID != s.Owner {
		g.dropped++
		return false
	}
	if r, exists := g.avatars[s.EntityID]; exists {
		if !r.Receive(s) {
			g.dropped++
			return false
		}
		return true
	}
	if s.Seq <= g.tombstones[s.EntityID] {
		g.dropped++
		return false
	}
	delete(g.tombstones, s.EntityID)
	g.avatars[s.EntityID] = newReplicator(s.Owner, false, s.State, s.Seq, g.cfg)
	return true
}

// Remove despawns an avatar. lastSeq is the owner's final sequence for that life.
func (g *Registry) Remove(owner models.PeerID, lastSeq uint64) bool {
	r, exists := g.avatars[owner]
	if exists && r.lastSeq > lastSeq {
		lastSeq = r.lastSeq
	}
	if owner != g.local {
		g.tombstones[owner] = lastSeq
	}
	delete(g.avatars, owner)
	return exists
}

// Forget drops every trace of a peer that left the session.
func (g *Registry) Forget(owner models.PeerID) {
	delete(g.avatars, owner)
	delete(g.tombstones, owner)
}

// Step eases every observed avatar.
func (g *Registry) Step(dt time.Duration) {
	for _, r := range g.avatars {
		r.Step(dt)
	}
}

// Get returns the replicator for an avatar.
func (g *Registry) Get(owner models.PeerID) (*Replicator, bool) {
	r, ok := g.avatars[owner]
	return r, ok
}

// Snapshots returns the presented state of every avatar ordered by owner.
func (g *Registry) Snapshots() []models.EntitySnapshot {
	out := make([]models.EntitySnapshot, 0, len(g.avatars))
	for _, r := range g.avatars {
		out = append(out, models.EntitySnapshot{
			EntityID: r.entity,
			Owner:    r.owner,
			Seq:      r.lastSeq,
			State:    r.current,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Dropped returns how many samples were discarded as stale or misaddressed.
func (g *Registry) Dropped() uint64 {
	return g.dropped
}
