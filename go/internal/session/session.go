package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomsync/go/internal/clock"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/peers"
	"github.com/mcdev12/roomsync/go/internal/replicator"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/mcdev12/roomsync/go/internal/store"
	"github.com/rs/zerolog/log"
)

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the wall clock. Tests pass a clockwork fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.wall = c }
}

// WithMetrics installs a metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRand replaces the random source used for item drops.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rng = r }
}

// Session is one peer's participation in a room. It owns the peer directory, the player
// records, the room clock and the avatar replicators, and is driven by a single goroutine
// calling Tick (or Run). Other goroutines use Submit and View only.
type Session struct {
	cfg       Config
	transport rpc.Transport
	wall      clockwork.Clock
	metrics   MetricsCollector
	rng       *rand.Rand

	local   models.Peer
	dir     *peers.Directory
	records *store.Store
	clock   *clock.Clock
	avatars *replicator.Registry
	timers  *timers

	joined   bool
	deployed bool
	stopped  bool
	avatar   models.AvatarState
	killLog  []models.KillLogEntry
	drops    []models.ItemDrop
	actions  []models.AvatarAction
	weapons  map[models.PeerID]int
	ticks    uint64

	commands chan queuedCommand
	view     atomic.Pointer[View]
}

// New creates a session on top of a connected transport.
func New(transport rpc.Transport, cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:       cfg,
		transport: transport,
		wall:      clockwork.NewRealClock(),
		metrics:   &NoOpMetricsCollector{},
		local:     transport.Local(),
		weapons:   make(map[models.PeerID]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.wall.Now().UnixNano()))
	}
	queue := cfg.CommandQueue
	if queue <= 0 {
		queue = DefaultConfig().CommandQueue
	}
	s.commands = make(chan queuedCommand, queue)

	s.dir = peers.NewDirectory(s.local.ID)
	s.records = store.New()
	s.clock = clock.New(cfg.Clock, s.dir, transport)
	s.avatars = replicator.NewRegistry(s.local.ID, cfg.Replicator)
	s.timers = newTimers(s.wall)
	s.dir.OnAuthorityChanged(s.onAuthorityChanged)

	s.publishView()
	return s
}

// Run ticks the session at the configured rate until ctx is cancelled or the session leaves
// the room. Cancellation leaves the room gracefully.
func (s *Session) Run(ctx context.Context) error {
	rate := s.cfg.TickRate
	if rate <= 0 {
		rate = DefaultConfig().TickRate
	}
	ticker := s.wall.NewTicker(rate)
	defer ticker.Stop()

	log.Info().
		Str("peer_id", s.local.ID.String()).
		Dur("tick_rate", rate).
		Msg("session loop started")

	last := s.wall.Now()
	for {
		select {
		case <-ctx.Done():
			if err := s.RequestLeave(); err != nil && !errors.Is(err, ErrStopped) {
				log.Warn().Err(err).Msg("failed to leave room on shutdown")
			}
			log.Info().Str("peer_id", s.local.ID.String()).Msg("session loop stopped")
			return nil
		case now := <-ticker.Chan():
			dt := now.Sub(last)
			last = now
			s.Tick(dt)
			if s.stopped {
				return nil
			}
		}
	}
}

// Tick runs one frame: queued commands, simulation, outgoing flush, incoming drain.
func (s *Session) Tick(dt time.Duration) {
	if s.stopped {
		return
	}
	start := s.wall.Now()

	s.applyCommands()
	if !s.stopped {
		s.simulate(dt)
		s.flush()
		s.drain()
	}

	s.ticks++
	s.metrics.RecordTick(s.wall.Since(start))
	s.publishView()
}

// Submit queues a command for the next tick. The returned channel receives the command's
// result once it has been applied.
func (s *Session) Submit(cmd Command) <-chan error {
	reply := make(chan error, 1)
	select {
	case s.commands <- queuedCommand{cmd: cmd, reply: reply}:
	default:
		reply <- ErrBusy
	}
	return reply
}

func (s *Session) applyCommands() {
	for {
		select {
		case q := <-s.commands:
			err := q.cmd.apply(s)
			if err != nil {
				log.Debug().Err(err).Str("command", fmt.Sprintf("%T", q.cmd)).Msg("command refused")
			}
			q.reply <- err
		default:
			return
		}
	}
}

func (s *Session) simulate(dt time.Duration) {
	s.clock.Tick(dt)

	for _, name := range s.timers.due() {
		switch name {
		case timerRespawn:
			log.Debug().Str("peer_id", s.local.ID.String()).Msg("respawn countdown finished")
		case timerItemDrop:
			s.dropItem()
		}
	}

	if s.clock.Phase() == models.PhaseExtension && s.deployed {
		s.despawnLocal()
	}

	s.avatars.Step(dt)
	s.pruneKillLog()
}

func (s *Session) flush() {
	if s.deployed {
		if snap, ok := s.avatars.SampleLocal(s.avatar); ok {
			s.publish(rpc.Snapshot{Snapshot: snap})
		}
	}
	if sync, ok := s.clock.Sync(); ok {
		s.publish(sync)
	}
}

func (s *Session) drain() {
	s.actions = s.actions[:0]
	for _, ev := range s.transport.Poll() {
		s.handleEvent(ev)
		if s.stopped {
			return
		}
	}
}

func (s *Session) handleEvent(ev rpc.Event) {
	switch e := ev.(type) {
	case rpc.PeerJoined:
		s.onPeerJoined(e.Peer)
	case rpc.PeerLeft:
		s.onPeerLeft(e.Peer)
	case rpc.AuthorityChanged:
		s.dir.ReportAuthority(e.Candidates)
		if s.dir.Ambiguous() {
			s.metrics.RecordAuthorityAmbiguity()
		}
	case rpc.Delivery:
		s.metrics.RecordMessage(e.Msg.Kind(), e.Unreliable)
		s.dispatch(e.From, e.Msg)
	default:
		log.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("ignoring unknown transport event")
	}
}

func (s *Session) onPeerJoined(p models.Peer) {
	if !s.dir.OnPeerJoined(p) {
		s.metrics.RecordDuplicateJoin()
		log.Debug().Str("peer_id", p.ID.String()).Msg("duplicate peer join ignored")
		return
	}

	if p.ID == s.local.ID {
		s.joined = true
		s.send(rpc.AllBuffered, rpc.AddRecord{PeerID: s.local.ID, Name: s.local.Name})
		log.Info().
			Str("peer_id", s.local.ID.String()).
			Str("name", s.local.Name).
			Msg("joined room")
		return
	}

	// Health and score are not buffered; bring the newcomer up to date with ours.
	if !s.joined {
		return
	}
	if me, ok := s.records.Get(s.local.ID); ok {
		s.send(rpc.To(p.ID), rpc.SetHealth{Target: s.local.ID, Value: me.Health})
		s.send(rpc.To(p.ID), rpc.SetScore{Value: me.Score})
	}
}

func (s *Session) onPeerLeft(p models.Peer) {
	s.dir.OnPeerLeft(p)
	s.records.RemoveRecord(p.ID)
	s.avatars.Forget(p.ID)
	delete(s.weapons, p.ID)
}

// onAuthorityChanged arms the item drop timer while the local peer holds authority.
func (s *Session) onAuthorityChanged(prev, next models.Peer) {
	switch {
	case next.ID == s.local.ID:
		s.scheduleItemDrop()
	case prev.ID == s.local.ID:
		s.timers.cancel(timerItemDrop)
	}
}

func (s *Session) dispatch(from models.PeerID, msg rpc.Message) {
	switch m := msg.(type) {
	case rpc.AddRecord:
		s.handleAddRecord(from, m)
	case rpc.SetHealth:
		s.handleSetHealth(from, m)
	case rpc.SetScore:
		if _, err := s.records.SetScore(from, m.Value); err != nil {
			s.stale(from, msg, err)
		}
	case rpc.Die:
		s.handleDie(from, m)
	case rpc.StartGame:
		s.handleStartGame(from, m)
	case rpc.EndGame:
		s.handleEndGame(from, m)
	case rpc.ClockSync:
		s.clock.ApplySync(from, m)
	case rpc.Snapshot:
		if m.Snapshot.Owner != from || !s.avatars.Receive(m.Snapshot) {
			s.metrics.RecordDroppedSnapshot()
		}
	case rpc.Spawn:
		if from != s.local.ID {
			s.avatars.Observe(from, m.State, m.Seq)
		}
	case rpc.Despawn:
		if from != s.local.ID {
			s.avatars.Remove(from, m.LastSeq)
		}
	case rpc.Jump:
		s.recordAction(models.AvatarAction{Peer: from, Kind: models.ActionJump})
	case rpc.Shoot:
		s.recordAction(models.AvatarAction{Peer: from, Kind: models.ActionShoot, Direction: m.Direction, Angle: m.Angle})
	case rpc.ChangeWeapon:
		s.weapons[from] = m.Index
		s.recordAction(models.AvatarAction{Peer: from, Kind: models.ActionChangeWeapon, Weapon: m.Index})
	case rpc.DropItem:
		s.handleDropItem(from, m)
	default:
		log.Warn().Str("kind", string(msg.Kind())).Msg("unhandled message kind")
	}
}

func (s *Session) handleAddRecord(from models.PeerID, m rpc.AddRecord) {
	if m.PeerID != from || !s.dir.Contains(m.PeerID) {
		s.stale(from, m, fmt.Errorf("record for %s from %s: %w", m.PeerID, from, store.ErrStaleMutation))
		return
	}
	if err := s.records.AddRecord(m.PeerID, m.Name); err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			s.metrics.RecordDuplicateJoin()
			log.Debug().Str("peer_id", m.PeerID.String()).Msg("duplicate player record ignored")
			return
		}
		log.Error().Err(err).Str("peer_id", m.PeerID.String()).Msg("failed to add player record")
	}
}

// handleSetHealth applies the value and, when it leaves the local deployed avatar at zero,
// despawns it and announces a single Die naming the sender as attacker.
func (s *Session) handleSetHealth(from models.PeerID, m rpc.SetHealth) {
	rec, err := s.records.SetHealth(m.Target, m.Value)
	if err != nil {
		s.stale(from, m, err)
		return
	}
	if m.Target != s.local.ID {
		return
	}
	if rec.Health <= 0 && s.deployed {
		s.despawnLocal()
		s.send(rpc.All, rpc.Die{Attacker: from})
		return
	}
	if from != s.local.ID {
		log.Debug().
			Str("attacker", from.String()).
			Int("health", rec.Health).
			Msg("local avatar hit")
	}
}

func (s *Session) handleDie(victim models.PeerID, m rpc.Die) {
	entry := models.KillLogEntry{
		Attacker:  s.displayName(m.Attacker),
		Victim:    s.displayName(victim),
		ExpiresAt: s.wall.Now().Add(s.cfg.KillLogTTL),
	}
	s.killLog = append(s.killLog, entry)
	log.Info().
		Str("attacker", entry.Attacker).
		Str("victim", entry.Victim).
		Msg("player killed")

	if victim == s.local.ID {
		s.deployed = false
		if s.clock.Phase() != models.PhaseExtension {
			s.timers.schedule(timerRespawn, s.cfg.DeployDelay)
		}
	}

	if m.Attacker == s.local.ID && victim != s.local.ID {
		if me, ok := s.records.Get(s.local.ID); ok {
			s.send(rpc.All, rpc.SetScore{Value: me.Score + s.cfg.KillReward})
		}
	}
}

func (s *Session) handleStartGame(from models.PeerID, m rpc.StartGame) {
	if !s.clock.AcceptTransition(from, m.Seq) {
		return
	}
	if from != s.local.ID {
		s.clock.Reset(models.RoomClock{
			TimeLeft: s.cfg.Clock.GameDuration.Seconds(),
			Phase:    models.PhasePlaying,
		})
	}
	s.send(rpc.All, rpc.SetScore{Value: 0})
}

func (s *Session) handleEndGame(from models.PeerID, m rpc.EndGame) {
	if !s.clock.AcceptTransition(from, m.Seq) {
		return
	}
	if from != s.local.ID {
		s.clock.Reset(models.RoomClock{
			TimeLeft: s.cfg.Clock.ExtensionDuration.Seconds(),
			Phase:    models.PhaseExtension,
		})
	}
	s.despawnLocal()
}

func (s *Session) handleDropItem(from models.PeerID, m rpc.DropItem) {
	if !s.dir.IsAuthority(from) {
		log.Warn().Str("from", from.String()).Msg("ignoring item drop from non-authority peer")
		return
	}
	s.drops = append(s.drops, models.ItemDrop{Index: m.Index, DroppedBy: from, At: s.wall.Now()})
	if limit := s.cfg.MaxItemDrops; limit > 0 && len(s.drops) > limit {
		s.drops = s.drops[len(s.drops)-limit:]
	}
}

func (s *Session) recordAction(a models.AvatarAction) {
	if a.Peer == s.local.ID {
		return
	}
	s.actions = append(s.actions, a)
}

func (s *Session) stale(from models.PeerID, msg rpc.Message, err error) {
	s.metrics.RecordStaleMutation(msg.Kind())
	log.Warn().
		Err(err).
		Str("from", from.String()).
		Str("kind", string(msg.Kind())).
		Msg("ignoring stale mutation")
}

func (s *Session) scheduleItemDrop() {
	if s.cfg.ItemCatalog <= 0 {
		return
	}
	lo, hi := s.cfg.ItemDropMin, s.cfg.ItemDropMax
	if hi < lo {
		lo, hi = hi, lo
	}
	d := lo
	if hi > lo {
		d += time.Duration(s.rng.Int63n(int64(hi - lo)))
	}
	s.timers.schedule(timerItemDrop, d)
}

func (s *Session) dropItem() {
	if !s.dir.IsLocalAuthority() {
		return
	}
	s.send(rpc.All, rpc.DropItem{Index: s.rng.Intn(s.cfg.ItemCatalog)})
	s.scheduleItemDrop()
}

func (s *Session) despawnLocal() {
	if !s.deployed {
		return
	}
	last := s.avatars.LocalSeq()
	s.avatars.Remove(s.local.ID, last)
	s.deployed = false
	s.send(rpc.All, rpc.Despawn{LastSeq: last})
}

func (s *Session) pruneKillLog() {
	now := s.wall.Now()
	keep := s.killLog[:0]
	for _, e := range s.killLog {
		if e.ExpiresAt.After(now) {
			keep = append(keep, e)
		}
	}
	s.killLog = keep
}

func (s *Session) displayName(id models.PeerID) string {
	if rec, ok := s.records.Get(id); ok {
		return rec.Name
	}
	if p, ok := s.dir.Get(id); ok && p.Name != "" {
		return p.Name
	}
	return id.String()
}

func (s *Session) send(target rpc.Target, msg rpc.Message) {
	if err := s.transport.Send(target, msg); err != nil {
		log.Error().
			Err(err).
			Str("target", target.String()).
			Str("kind", string(msg.Kind())).
			Msg("failed to send message")
	}
}

func (s *Session) publish(msg rpc.Message) {
	if err := s.transport.Publish(msg); err != nil {
		log.Debug().Err(err).Str("kind", string(msg.Kind())).Msg("failed to publish state")
	}
}

// RequestDeploy spawns the local avatar at full health.
func (s *Session) RequestDeploy() error {
	switch {
	case s.stopped:
		return ErrStopped
	case !s.joined:
		return ErrNotJoined
	case s.deployed:
		return ErrAlreadyDeployed
	case s.clock.Phase() != models.PhasePlaying:
		return ErrNotPlaying
	case s.timers.pending(timerRespawn):
		return ErrRespawnPending
	}

	s.avatar = models.AvatarState{
		Position: s.cfg.SpawnPoint,
		Scale:    models.Vec3{X: 1, Y: 1, Z: 1},
	}
	_, seq := s.avatars.SpawnLocal(s.avatar)
	s.send(rpc.All, rpc.Spawn{State: s.avatar, Seq: seq})
	s.send(rpc.All, rpc.SetHealth{Target: s.local.ID, Value: models.MaxHealth})
	s.deployed = true

	log.Info().Str("peer_id", s.local.ID.String()).Uint64("seq", seq).Msg("avatar deployed")
	return nil
}

// RequestLeave despawns the local avatar, leaves the room and stops the session.
func (s *Session) RequestLeave() error {
	if s.stopped {
		return ErrStopped
	}
	s.despawnLocal()
	s.timers.stopAll()
	s.stopped = true

	err := s.transport.Close()
	s.publishView()
	log.Info().Str("peer_id", s.local.ID.String()).Msg("left room")
	if err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// DestroyAvatar despawns the local avatar without announcing a death. No respawn countdown is
// started, so the player may deploy again right away.
func (s *Session) DestroyAvatar() error {
	switch {
	case s.stopped:
		return ErrStopped
	case !s.deployed:
		return ErrNotDeployed
	}
	s.despawnLocal()
	log.Info().Str("peer_id", s.local.ID.String()).Msg("avatar destroyed")
	return nil
}

// SetAvatarState records the local simulation's avatar state, sampled at the next flush.
func (s *Session) SetAvatarState(state models.AvatarState) error {
	if !s.deployed {
		return ErrNotDeployed
	}
	s.avatar = state
	return nil
}

// Jump tells the other peers the local avatar jumped.
func (s *Session) Jump() error {
	if !s.deployed {
		return ErrNotDeployed
	}
	s.send(rpc.Others, rpc.Jump{})
	return nil
}

// Shoot tells the other peers the local avatar fired.
func (s *Session) Shoot(direction models.Vec2, angle float64) error {
	if !s.deployed {
		return ErrNotDeployed
	}
	s.send(rpc.Others, rpc.Shoot{Direction: direction, Angle: angle})
	return nil
}

// ChangeWeapon switches the local weapon and announces it.
func (s *Session) ChangeWeapon(index int) error {
	if !s.deployed {
		return ErrNotDeployed
	}
	s.weapons[s.local.ID] = index
	s.send(rpc.Others, rpc.ChangeWeapon{Index: index})
	return nil
}

// DealDamage lowers target's health by power, as seen by the local peer. Damage to self is
// ignored.
func (s *Session) DealDamage(target models.PeerID, power int) error {
	if s.stopped {
		return ErrStopped
	}
	if target == s.local.ID {
		return nil
	}
	rec, ok := s.records.Get(target)
	if !ok {
		return fmt.Errorf("deal damage to %s: %w", target, store.ErrStaleMutation)
	}
	s.send(rpc.All, rpc.SetHealth{Target: target, Value: rec.Health - power})
	return nil
}

// PickupHealth restores up to bonus health to the local avatar.
func (s *Session) PickupHealth(bonus int) error {
	if !s.deployed {
		return ErrNotDeployed
	}
	me, ok := s.records.Get(s.local.ID)
	if !ok {
		return ErrNotJoined
	}
	value := me.Health + bonus
	if value > models.MaxHealth {
		value = models.MaxHealth
	}
	s.send(rpc.All, rpc.SetHealth{Target: s.local.ID, Value: value})
	return nil
}

// Local returns the local peer.
func (s *Session) Local() models.Peer {
	return s.local
}

// GetRecord returns the record of a player.
func (s *Session) GetRecord(id models.PeerID) (models.PlayerRecord, bool) {
	return s.records.Get(id)
}

// Records returns every player record ordered by id.
func (s *Session) Records() []models.PlayerRecord {
	return s.records.Records()
}

// Ranking returns the scoreboard order.
func (s *Session) Ranking() []models.PlayerRecord {
	return s.records.Ranking()
}

// Phase returns the current room phase.
func (s *Session) Phase() models.RoomPhase {
	return s.clock.Phase()
}

// Clock returns the room clock as last advanced or synced.
func (s *Session) Clock() models.RoomClock {
	return s.clock.State()
}

// TimeLeftText renders the remaining time as MM:SS.
func (s *Session) TimeLeftText() string {
	return s.clock.TimeLeftText()
}

// IsLocalDeployed reports whether the local avatar is alive.
func (s *Session) IsLocalDeployed() bool {
	return s.deployed
}

// IsAuthority reports whether the local peer holds authority.
func (s *Session) IsAuthority() bool {
	return s.dir.IsLocalAuthority()
}

// KillLog returns the unexpired kill log, oldest first.
func (s *Session) KillLog() []models.KillLogEntry {
	out := make([]models.KillLogEntry, len(s.killLog))
	copy(out, s.killLog)
	return out
}

// RespawnRemaining returns how long until the local peer may deploy again.
func (s *Session) RespawnRemaining() time.Duration {
	return s.timers.remaining(timerRespawn)
}

// Avatars returns the presented state of every live avatar.
func (s *Session) Avatars() []models.EntitySnapshot {
	return s.avatars.Snapshots()
}

// Stopped reports whether the session has left the room.
func (s *Session) Stopped() bool {
	return s.stopped
}
