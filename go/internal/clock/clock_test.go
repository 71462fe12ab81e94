package clock

import (
	"testing"
	"time"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/peers"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	target rpc.Target
	msg    rpc.Message
}

type fakeBroadcaster struct {
	sent []sent
}

func (f *fakeBroadcaster) Send(target rpc.Target, msg rpc.Message) error {
	f.sent = append(f.sent, sent{target: target, msg: msg})
	return nil
}

const tick = 50 * time.Millisecond

func testConfig() Config {
	return Config{GameDuration: 2 * time.Minute, ExtensionDuration: 10 * time.Second}
}

func newDirectory(local models.PeerID, ids ...models.PeerID) *peers.Directory {
	dir := peers.NewDirectory(local)
	for i, id := range ids {
		dir.OnPeerJoined(models.Peer{ID: id, JoinOrder: uint64(i + 1)})
	}
	return dir
}

func TestNewClockStartsPlaying(t *testing.T) {
	c := New(testConfig(), newDirectory("a", "a"), &fakeBroadcaster{})
	assert.Equal(t, models.PhasePlaying, c.Phase())
	assert.Equal(t, "02:00", c.TimeLeftText())
}

func TestAuthorityTransitions(t *testing.T) {
	dir := newDirectory("a", "a", "b")
	dir.ReportAuthority([]models.PeerID{"a"})
	out := &fakeBroadcaster{}
	c := New(testConfig(), dir, out)

	c.Reset(models.RoomClock{TimeLeft: tick.Seconds(), Phase: models.PhasePlaying})
	msg := c.Tick(tick)

	assert.Equal(t, rpc.EndGame{Seq: 1}, msg)
	assert.Equal(t, models.PhaseExtension, c.Phase())
	assert.InDelta(t, 10.0, c.State().TimeLeft, 1e-9)
	require.Len(t, out.sent, 1)
	assert.Equal(t, rpc.All, out.sent[0].target)
	assert.Equal(t, rpc.EndGame{Seq: 1}, out.sent[0].msg)

	frame, ok := c.Sync()
	require.True(t, ok)
	assert.Equal(t, uint64(2), frame.Seq)

	// Run the extension out.
	assert.Nil(t, c.Tick(5*time.Second))
	assert.Equal(t, models.PhaseExtension, c.Phase())
	msg = c.Tick(5 * time.Second)
	assert.Equal(t, rpc.StartGame{Seq: 3}, msg)
	assert.Equal(t, models.PhasePlaying, c.Phase())
	assert.InDelta(t, 120.0, c.State().TimeLeft, 1e-9)
	require.Len(t, out.sent, 2)
	assert.Equal(t, rpc.StartGame{Seq: 3}, out.sent[1].msg)
}

func TestNonAuthorityNeverAdvances(t *testing.T) {
	dir := newDirectory("b", "a", "b")
	dir.ReportAuthority([]models.PeerID{"a"})
	out := &fakeBroadcaster{}
	c := New(testConfig(), dir, out)
	c.Reset(models.RoomClock{TimeLeft: 0.01, Phase: models.PhasePlaying})

	for i := 0; i < 10; i++ {
		assert.Nil(t, c.Tick(tick))
	}
	assert.Equal(t, models.PhasePlaying, c.Phase())
	assert.InDelta(t, 0.01, c.State().TimeLeft, 1e-9)
	assert.Empty(t, out.sent)

	_, ok := c.Sync()
	assert.False(t, ok)
}

func TestClockStallsWhileAuthorityAmbiguous(t *testing.T) {
	dir := newDirectory("a", "a", "b")
	dir.ReportAuthority([]models.PeerID{"a", "b"})
	c := New(testConfig(), dir, &fakeBroadcaster{})

	before := c.State()
	c.Tick(time.Second)
	assert.Equal(t, before, c.State())
	assert.True(t, dir.Ambiguous())

	dir.ReportAuthority([]models.PeerID{"a"})
	c.Tick(time.Second)
	assert.InDelta(t, before.TimeLeft-1, c.State().TimeLeft, 1e-9)
}

func TestApplySyncOnlyFromAuthority(t *testing.T) {
	dir := newDirectory("b", "a", "b", "c")
	dir.ReportAuthority([]models.PeerID{"a"})
	c := New(testConfig(), dir, &fakeBroadcaster{})

	frame := rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 42, Phase: models.PhaseExtension}, Seq: 1}
	assert.False(t, c.ApplySync("c", frame))
	assert.Equal(t, models.PhasePlaying, c.Phase())

	assert.True(t, c.ApplySync("a", frame))
	assert.Equal(t, frame.Clock, c.State())

	bad := rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 1, Phase: models.RoomPhase(9)}, Seq: 2}
	assert.False(t, c.ApplySync("a", bad))
	assert.Equal(t, frame.Clock, c.State())
}

func TestAcceptTransition(t *testing.T) {
	dir := newDirectory("b", "a", "b")
	dir.ReportAuthority([]models.PeerID{"a"})
	c := New(testConfig(), dir, &fakeBroadcaster{})

	assert.True(t, c.AcceptTransition("a", 7))
	assert.Equal(t, uint64(7), c.Seq())
	assert.False(t, c.AcceptTransition("b", 9))
	assert.Equal(t, uint64(7), c.Seq())
}

func TestApplySyncDropsFramesOlderThanTransition(t *testing.T) {
	dir := newDirectory("b", "a", "b")
	dir.ReportAuthority([]models.PeerID{"a"})
	c := New(testConfig(), dir, &fakeBroadcaster{})

	playing := rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 0.1, Phase: models.PhasePlaying}, Seq: 10}
	require.True(t, c.ApplySync("a", playing))

	// EndGame stamped 12 arrives before the frame stamped 11 that preceded it.
	require.True(t, c.AcceptTransition("a", 12))
	c.Reset(models.RoomClock{TimeLeft: 10, Phase: models.PhaseExtension})

	late := rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 0.05, Phase: models.PhasePlaying}, Seq: 11}
	assert.False(t, c.ApplySync("a", late))
	assert.Equal(t, models.PhaseExtension, c.Phase())

	assert.False(t, c.ApplySync("a", playing), "duplicate frame")

	next := rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 9.95, Phase: models.PhaseExtension}, Seq: 13}
	assert.True(t, c.ApplySync("a", next))
	assert.Equal(t, next.Clock, c.State())
}

func TestNewAuthorityRestartsSequence(t *testing.T) {
	dir := newDirectory("c", "a", "b", "c")
	dir.ReportAuthority([]models.PeerID{"a"})
	c := New(testConfig(), dir, &fakeBroadcaster{})

	require.True(t, c.ApplySync("a", rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 30, Phase: models.PhasePlaying}, Seq: 500}))

	dir.OnPeerLeft(models.Peer{ID: "a"})
	dir.ReportAuthority([]models.PeerID{"b"})

	assert.False(t, c.ApplySync("a", rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 29, Phase: models.PhasePlaying}, Seq: 501}))
	assert.True(t, c.ApplySync("b", rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 29.9, Phase: models.PhasePlaying}, Seq: 1}))
	assert.InDelta(t, 29.9, c.State().TimeLeft, 1e-9)
}

func TestFailoverResumesFromLastSync(t *testing.T) {
	dir := newDirectory("b", "a", "b")
	dir.ReportAuthority([]models.PeerID{"a"})
	out := &fakeBroadcaster{}
	c := New(testConfig(), dir, out)

	require.True(t, c.ApplySync("a", rpc.ClockSync{Clock: models.RoomClock{TimeLeft: 12.3, Phase: models.PhasePlaying}, Seq: 40}))

	dir.OnPeerLeft(models.Peer{ID: "a"})
	dir.ReportAuthority([]models.PeerID{"b"})
	require.True(t, dir.IsLocalAuthority())

	c.Tick(tick)
	assert.InDelta(t, 12.3-tick.Seconds(), c.State().TimeLeft, 1e-9)
	assert.Less(t, c.State().TimeLeft, testConfig().GameDuration.Seconds())
	assert.Empty(t, out.sent)

	frame, ok := c.Sync()
	require.True(t, ok)
	assert.Equal(t, c.State(), frame.Clock)
	assert.Equal(t, uint64(41), frame.Seq)
}
