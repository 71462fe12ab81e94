package clock

import (
	"time"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/peers"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/rs/zerolog/log"
)

// Config holds the round timing.
type Config struct {
	GameDuration      time.Duration `yaml:"game_duration"`
	ExtensionDuration time.Duration `yaml:"extension_duration"`
}

// DefaultConfig returns the default round timing.
func DefaultConfig() Config {
	return Config{
		GameDuration:      3 * time.Minute,
		ExtensionDuration: 15 * time.Second,
	}
}

// Broadcaster is the part of the transport the clock needs.
type Broadcaster interface {
	Send(target rpc.Target, msg rpc.Message) error
}

// Clock is the room countdown. Only the peer the directory names as authority advances it;
// every other peer copies the authority's ClockSync frames.
//
// Frames and transitions share one sequence. The authority stamps each with the next value;
// observers keep the highest value seen and drop frames at or below it.
type Clock struct {
	cfg   Config
	dir   *peers.Directory
	out   Broadcaster
	state models.RoomClock
	seq   uint64
}

// New creates a clock in the Playing phase with a full game duration.
func New(cfg Config, dir *peers.Directory, out Broadcaster) *Clock {
	c := &Clock{
		cfg: cfg,
		dir: dir,
		out: out,
		state: models.RoomClock{
			TimeLeft: cfg.GameDuration.Seconds(),
			Phase:    models.PhasePlaying,
		},
	}
	dir.OnAuthorityChanged(c.onAuthorityChanged)
	return c
}

// onAuthorityChanged restarts the accepted sequence when another peer takes over, since its
// counter is unrelated to the previous authority's. A peer that takes over keeps counting from
// the highest value it has seen.
func (c *Clock) onAuthorityChanged(prev, next models.Peer) {
	if next.ID != "" && next.ID != c.dir.Local() {
		c.seq = 0
	}
}

// Tick advances the countdown by dt when the local peer is authority and fires the phase
// transition once it runs out. It returns the transition message sent, or nil.
func (c *Clock) Tick(dt time.Duration) rpc.Message {
	if !c.dir.IsLocalAuthority() {
		return nil
	}

	c.state.TimeLeft -= dt.Seconds()
	if c.state.TimeLeft > 0 {
		return nil
	}

	var msg rpc.Message
	switch c.state.Phase {
	case models.PhasePlaying:
		c.state.Phase = models.PhaseExtension
		c.state.TimeLeft = c.cfg.ExtensionDuration.Seconds()
		msg = rpc.EndGame{Seq: c.nextSeq()}
	case models.PhaseExtension:
		c.state.Phase = models.PhasePlaying
		c.state.TimeLeft = c.cfg.GameDuration.Seconds()
		msg = rpc.StartGame{Seq: c.nextSeq()}
	default:
		log.Error().Str("phase", c.state.Phase.String()).Msg("clock in unknown phase; restarting game")
		c.state.Phase = models.PhasePlaying
		c.state.TimeLeft = c.cfg.GameDuration.Seconds()
		msg = rpc.StartGame{Seq: c.nextSeq()}
	}

	log.Info().
		Str("phase", c.state.Phase.String()).
		Float64("time_left", c.state.TimeLeft).
		Str("event", string(msg.Kind())).
		Msg("room phase transition")

	if err := c.out.Send(rpc.All, msg); err != nil {
		log.Error().Err(err).Str("event", string(msg.Kind())).Msg("failed to broadcast phase transition")
	}
	return msg
}

// Sync returns the frame the authority broadcasts every tick. ok is false on non-authority
// peers, which must not publish clock state.
func (c *Clock) Sync() (rpc.ClockSync, bool) {
	if !c.dir.IsLocalAuthority() {
		return rpc.ClockSync{}, false
	}
	return rpc.ClockSync{Clock: c.state, Seq: c.nextSeq()}, true
}

func (c *Clock) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// Seq returns the highest clock sequence stamped or accepted.
func (c *Clock) Seq() uint64 {
	return c.seq
}

// ApplySync copies a frame received from the current authority. Frames from anyone else,
// echoes of our own frames, and frames not newer than the last accepted one are ignored.
func (c *Clock) ApplySync(from models.PeerID, sync rpc.ClockSync) bool {
	if from == c.dir.Local() || !c.dir.IsAuthority(from) {
		return false
	}
	if sync.Seq <= c.seq {
		log.Debug().
			Str("from", from.String()).
			Uint64("seq", sync.Seq).
			Uint64("last_seq", c.seq).
			Msg("dropping stale clock sync")
		return false
	}
	if !sync.Clock.Phase.Valid() {
		log.Warn().
			Str("from", from.String()).
			Int("phase", int(sync.Clock.Phase)).
			Msg("ignoring clock sync with unknown phase")
		return false
	}
	c.seq = sync.Seq
	c.state = sync.Clock
	return true
}

// AcceptTransition reports whether a StartGame/EndGame from sender should be honoured. An
// accepted transition raises the sequence floor to seq, so clock frames sent before it are
// dropped when they arrive late.
func (c *Clock) AcceptTransition(from models.PeerID, seq uint64) bool {
	if c.dir.IsAuthority(from) {
		if seq > c.seq {
			c.seq = seq
		}
		return true
	}
	log.Warn().Str("from", from.String()).Msg("ignoring phase transition from non-authority peer")
	return false
}

// Reset overwrites the clock state. Used by the authority to shorten a round and by tests.
func (c *Clock) Reset(state models.RoomClock) {
	c.state = state
}

// State returns the current clock.
func (c *Clock) State() models.RoomClock {
	return c.state
}

// Phase returns the current phase.
func (c *Clock) Phase() models.RoomPhase {
	return c.state.Phase
}

// TimeLeftText renders the remaining time as MM:SS.
func (c *Clock) TimeLeftText() string {
	return c.state.TimeLeftText()
}

// Config returns the round timing.
func (c *Clock) Config() Config {
	return c.cfg
}
