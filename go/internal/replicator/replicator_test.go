package replicator

import (
	"math"
	"testing"
	"time"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(x, y float64) models.AvatarState {
	return models.AvatarState{
		Position: models.Vec3{X: x, Y: y},
		Scale:    models.Vec3{X: 1, Y: 1, Z: 1},
	}
}

func TestObserverConvergesMonotonically(t *testing.T) {
	g := NewRegistry("observer", Config{Smoothing: 10})
	require.True(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 1, State: at(0, 0)}))
	require.True(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 2, State: at(10, 5)}))

	r, ok := g.Get("owner")
	require.True(t, ok)
	target := r.Target().Position

	dt := 16 * time.Millisecond
	prevErr := r.Current().Position.Sub(target).Len()
	require.Greater(t, prevErr, 0.0)

	for i := 0; i < 60; i++ {
		g.Step(dt)
		cur := r.Current().Position
		errNow := cur.Sub(target).Len()
		require.Less(t, errNow, prevErr, "tick %d: error must strictly decrease", i)
		require.LessOrEqual(t, cur.X, target.X, "tick %d: overshoot on X", i)
		require.LessOrEqual(t, cur.Y, target.Y, "tick %d: overshoot on Y", i)
		require.GreaterOrEqual(t, cur.X, 0.0)
		prevErr = errNow
	}
}

func TestLargeStepSnapsWithoutOvershoot(t *testing.T) {
	g := NewRegistry("observer", Config{Smoothing: 10})
	g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 1, State: at(0, 0)})
	g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 2, State: at(4, -4)})

	g.Step(time.Second)
	r, _ := g.Get("owner")
	assert.Equal(t, models.Vec3{X: 4, Y: -4}, r.Current().Position)
}

func TestOutOfOrderSamplesDropped(t *testing.T) {
	g := NewRegistry("observer", DefaultConfig())
	require.True(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 5, State: at(5, 0)}))

	assert.False(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 3, State: at(3, 0)}))
	assert.False(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 5, State: at(9, 0)}))

	r, _ := g.Get("owner")
	assert.Equal(t, 5.0, r.Target().Position.X)
	assert.Equal(t, uint64(5), r.LastSeq())
	assert.Equal(t, uint64(2), g.Dropped())
}

func TestMisaddressedSamplesDropped(t *testing.T) {
	g := NewRegistry("me", DefaultConfig())

	assert.False(t, g.Receive(models.EntitySnapshot{EntityID: "me", Owner: "me", Seq: 1}), "echo of own avatar")
	assert.False(t, g.Receive(models.EntitySnapshot{EntityID: "a", Owner: "b", Seq: 1}), "owner must match entity")
	_, ok := g.Get("a")
	assert.False(t, ok)
}

func TestScaleAndInputSnap(t *testing.T) {
	g := NewRegistry("observer", DefaultConfig())
	g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 1, State: at(0, 0)})

	flipped := at(10, 0)
	flipped.Scale = models.Vec3{X: -1, Y: 1, Z: 1}
	flipped.InputHorizontal = -0.8
	g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 2, State: flipped})

	r, _ := g.Get("owner")
	assert.Equal(t, flipped.Scale, r.Current().Scale)
	assert.Equal(t, -0.8, r.Current().InputHorizontal)
	assert.Equal(t, 0.0, r.Current().Position.X, "position eases, it does not snap")
}

func TestAngleTakesShortArc(t *testing.T) {
	assert.InDelta(t, 355.0, lerpAngle(350, 10, 0.25), 1e-9)
	assert.InDelta(t, 5.0, lerpAngle(10, 350, 0.25), 1e-9)
	assert.InDelta(t, 45.0, lerpAngle(0, 90, 0.5), 1e-9)
	assert.False(t, math.IsNaN(lerpAngle(0, 0, 1)))
}

func TestDespawnTombstoneBlocksLateSamples(t *testing.T) {
	g := NewRegistry("observer", DefaultConfig())
	g.Observe("owner", at(0, 0), 10)
	require.True(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 11, State: at(1, 0)}))

	assert.True(t, g.Remove("owner", 12))
	assert.False(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 12, State: at(2, 0)}))
	_, ok := g.Get("owner")
	assert.False(t, ok)

	// A sample from the next life brings the avatar back.
	assert.True(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 14, State: at(3, 0)}))
	_, ok = g.Get("owner")
	assert.True(t, ok)
}

func TestLocalSequenceSurvivesRespawn(t *testing.T) {
	g := NewRegistry("me", DefaultConfig())

	_, spawnSeq := g.SpawnLocal(at(0, 0))
	s1, ok := g.SampleLocal(at(1, 0))
	require.True(t, ok)
	assert.Greater(t, s1.Seq, spawnSeq)

	g.Remove("me", s1.Seq)
	_, ok = g.SampleLocal(at(2, 0))
	assert.False(t, ok, "no samples without a live avatar")

	_, respawnSeq := g.SpawnLocal(at(0, 0))
	assert.Greater(t, respawnSeq, s1.Seq)

	r, ok := g.Local()
	require.True(t, ok)
	assert.True(t, r.IsOwner())
	r.Step(time.Second)
	assert.Equal(t, at(0, 0), r.Current(), "owner state is never interpolated")
}

func TestForgetClearsTombstone(t *testing.T) {
	g := NewRegistry("observer", DefaultConfig())
	g.Observe("owner", at(0, 0), 10)
	g.Remove("owner", 10)
	g.Forget("owner")

	assert.True(t, g.Receive(models.EntitySnapshot{EntityID: "owner", Owner: "owner", Seq: 1, State: at(0, 0)}))
}
