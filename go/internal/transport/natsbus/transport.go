package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when using a transport after Close.
var ErrClosed = errors.New("nats transport closed")

// presence is announced on the room's presence subject every heartbeat.
type presence struct {
	Peer  models.Peer `json:"peer"`
	Hello bool        `json:"hello,omitempty"`
	Bye   bool        `json:"bye,omitempty"`
}

// asyncPublisher is the part of JetStream used to send calls.
type asyncPublisher interface {
	PublishMsgAsync(msg *nats.Msg, opts ...jetstream.PublishOpt) (jetstream.PubAckFuture, error)
}

type pendingAck struct {
	kind    rpc.Kind
	subject string
	future  jetstream.PubAckFuture
}

type member struct {
	peer     models.Peer
	lastSeen time.Time
}

// Transport connects a peer to a room over NATS. Reliable calls go through a JetStream stream
// per room, read back with an ordered consumer so every peer applies them in stream order.
// Avatar samples and clock frames use core NATS subjects. Membership comes from presence
// heartbeats, and authority is the earliest joined live peer.
type Transport struct {
	cfg     Config
	clock   clockwork.Clock
	nc      *nats.Conn
	js      jetstream.JetStream
	pub     asyncPublisher
	stream  jetstream.Stream
	consume jetstream.ConsumeContext
	subs    []*nats.Subscription
	local   models.Peer
	joinSeq uint64
	cancel  context.CancelFunc
	done    chan struct{}

	acks       chan pendingAck
	stopAcks   context.CancelFunc
	acksDone   chan struct{}
	failedAcks atomic.Uint64

	mu        sync.Mutex
	ready     bool
	closed    bool
	events    []rpc.Event
	peers     map[models.PeerID]*member
	held      map[models.PeerID][]rpc.Event
	authority models.PeerID
}

var _ rpc.Transport = (*Transport)(nil)

// Connect joins the room named in cfg as a new peer.
func Connect(ctx context.Context, cfg Config, name string) (*Transport, error) {
	opts := []nats.Option{
		nats.Name(fmt.Sprintf("roomsync-%s", name)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc,
		jetstream.WithPublishAsyncMaxPending(cfg.MaxPendingAcks),
		jetstream.WithPublishAsyncTimeout(cfg.PublishTimeout),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	clock := clockwork.NewRealClock()
	t := &Transport{
		cfg:   cfg,
		clock: clock,
		nc:    nc,
		js:    js,
		pub:   js,
		local: models.Peer{
			ID:        models.PeerID(uuid.NewString()),
			Name:      name,
			Alive:     true,
			JoinOrder: uint64(clock.Now().UnixNano()),
		},
		done:  make(chan struct{}),
		peers: make(map[models.PeerID]*member),
		held:  make(map[models.PeerID][]rpc.Event),
	}
	t.startAckWatcher()

	if err := t.start(ctx); err != nil {
		t.shutdown()
		return nil, err
	}
	return t, nil
}

func (t *Transport) start(ctx context.Context) error {
	if err := t.ensureStream(ctx); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}

	info, err := t.stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	t.joinSeq = info.State.LastSeq

	presenceSub, err := t.nc.Subscribe(roomSubject(t.cfg, "presence"), t.onPresence)
	if err != nil {
		return fmt.Errorf("subscribe presence: %w", err)
	}
	t.subs = append(t.subs, presenceSub)

	stateSub, err := t.nc.Subscribe(roomSubject(t.cfg, "state")+".*", t.onState)
	if err != nil {
		return fmt.Errorf("subscribe state: %w", err)
	}
	t.subs = append(t.subs, stateSub)

	// Collect the peers already in the room so their history is replayed after they are known.
	t.announce(presence{Peer: t.local, Hello: true})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(t.cfg.DiscoveryWait):
	}
	t.markReady()

	consumer, err := t.js.OrderedConsumer(ctx, streamName(t.cfg), jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{roomSubject(t.cfg, "rpc") + ".>"},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}
	t.consume, err = consumer.Consume(t.onCall)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	go t.heartbeat(runCtx)

	log.Info().
		Str("peer_id", t.local.ID.String()).
		Str("stream", streamName(t.cfg)).
		Uint64("join_seq", t.joinSeq).
		Msg("joined NATS room")
	return nil
}

func (t *Transport) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        streamName(t.cfg),
		Description: fmt.Sprintf("Reliable calls for room %s", t.cfg.Room),
		Subjects:    []string{roomSubject(t.cfg, "rpc") + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      t.cfg.MaxAge,
		Storage:     jetstream.MemoryStorage,
		Replicas:    t.cfg.Replicas,
		Duplicates:  t.cfg.DuplicateWindow,
	}

	stream, err := t.js.Stream(ctx, sc.Name)
	if err != nil {
		stream, err = t.js.CreateStream(ctx, sc)
		if err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", sc.Name).Msg("created JetStream stream")
	} else {
		info, err := stream.Info(ctx)
		if err != nil {
			return fmt.Errorf("get stream info: %w", err)
		}
		if !isStreamConfigEqual(info.Config, sc) {
			stream, err = t.js.UpdateStream(ctx, sc)
			if err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			log.Info().Str("stream", sc.Name).Msg("updated JetStream stream")
		}
	}
	t.stream = stream
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

// markReady reports the discovered peers, then the local peer, then the authority.
func (t *Transport) markReady() {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing := make([]models.Peer, 0, len(t.peers))
	for _, m := range t.peers {
		existing = append(existing, m.peer)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].Before(existing[j]) })
	for _, p := range existing {
		t.events = append(t.events, rpc.PeerJoined{Peer: p})
	}

	t.peers[t.local.ID] = &member{peer: t.local, lastSeen: t.clock.Now()}
	t.events = append(t.events, rpc.PeerJoined{Peer: t.local})
	t.ready = true
	t.reelectLocked()
}

func (t *Transport) announce(p presence) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal presence")
		return
	}
	if err := t.nc.Publish(roomSubject(t.cfg, "presence"), data); err != nil {
		log.Warn().Err(err).Msg("failed to announce presence")
	}
}

func (t *Transport) heartbeat(ctx context.Context) {
	defer close(t.done)
	ticker := t.clock.NewTicker(t.cfg.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.announce(presence{Peer: t.local})
			t.expire()
		}
	}
}

func (t *Transport) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	for id, m := range t.peers {
		if id == t.local.ID {
			continue
		}
		if now.Sub(m.lastSeen) > t.cfg.PeerTimeout {
			log.Warn().Str("peer_id", id.String()).Msg("peer timed out")
			t.removeLocked(id)
		}
	}
}

func (t *Transport) onPresence(msg *nats.Msg) {
	var p presence
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed presence")
		return
	}
	if p.Peer.ID == "" || p.Peer.ID == t.local.ID {
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if p.Bye {
		t.removeLocked(p.Peer.ID)
		t.mu.Unlock()
		return
	}

	if m, known := t.peers[p.Peer.ID]; known {
		m.lastSeen = t.clock.Now()
	} else {
		p.Peer.Alive = true
		t.peers[p.Peer.ID] = &member{peer: p.Peer, lastSeen: t.clock.Now()}
		if t.ready {
			t.events = append(t.events, rpc.PeerJoined{Peer: p.Peer})
			t.events = append(t.events, t.held[p.Peer.ID]...)
			delete(t.held, p.Peer.ID)
			t.reelectLocked()
		}
	}
	t.mu.Unlock()

	if p.Hello {
		t.announce(presence{Peer: t.local})
	}
}

func (t *Transport) onState(msg *nats.Msg) {
	env, err := rpc.DecodeEnvelope(msg.Data)
	if err != nil {
		log.Debug().Err(err).Msg("dropping malformed state frame")
		return
	}
	if env.From == t.local.ID {
		return
	}
	decoded, err := env.Decode()
	if err != nil || !rpc.Unreliable(decoded) {
		log.Debug().Err(err).Str("kind", string(env.Kind)).Msg("dropping state frame")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.ready {
		return
	}
	if _, known := t.peers[env.From]; known {
		t.events = append(t.events, rpc.Delivery{From: env.From, Msg: decoded, Unreliable: true})
	}
}

func (t *Transport) onCall(msg jetstream.Msg) {
	meta, err := msg.Metadata()
	if err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject()).Msg("call without metadata")
		return
	}
	env, err := rpc.DecodeEnvelope(msg.Data())
	if err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed call")
		return
	}
	if !shouldDeliver(env, meta.Sequence.Stream, t.joinSeq, t.local.ID) {
		return
	}
	decoded, err := env.Decode()
	if err != nil {
		log.Warn().Err(err).Uint64("sequence", meta.Sequence.Stream).Msg("dropping undecodable call")
		return
	}

	ev := rpc.Delivery{From: env.From, Msg: decoded}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, known := t.peers[env.From]; known {
		t.events = append(t.events, ev)
		return
	}

	// The sender's presence has not arrived yet; hold its calls until it does.
	held := append(t.held[env.From], ev)
	if len(held) > t.cfg.MaxHeld {
		held = held[len(held)-t.cfg.MaxHeld:]
		log.Warn().Str("peer_id", env.From.String()).Msg("held call limit reached; dropping oldest")
	}
	t.held[env.From] = held
}

func (t *Transport) removeLocked(id models.PeerID) {
	m, known := t.peers[id]
	if !known {
		return
	}
	delete(t.peers, id)
	delete(t.held, id)

	left := m.peer
	left.Alive = false
	t.events = append(t.events, rpc.PeerLeft{Peer: left})

	if t.authority == id {
		t.reelectLocked()
	}
	if t.authority == t.local.ID {
		go t.purge(id)
	}
}

func (t *Transport) reelectLocked() {
	live := make([]models.Peer, 0, len(t.peers))
	for _, m := range t.peers {
		live = append(live, m.peer)
	}
	id, ok := electAuthority(live)
	if !ok || id == t.authority {
		return
	}
	t.authority = id
	t.events = append(t.events, rpc.AuthorityChanged{Candidates: []models.PeerID{id}})
	log.Info().Str("peer_id", id.String()).Bool("local", id == t.local.ID).Msg("room authority elected")
}

// purge drops a departed peer's calls so later joiners do not replay them.
func (t *Transport) purge(id models.PeerID) {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.PublishTimeout)
	defer cancel()
	subject := rpcSubject(t.cfg, id)
	if err := t.stream.Purge(ctx, jetstream.WithPurgeSubject(subject)); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to purge departed peer calls")
		return
	}
	log.Debug().Str("subject", subject).Msg("purged departed peer calls")
}

// Local returns the local peer.
func (t *Transport) Local() models.Peer {
	return t.local
}

// Send publishes a reliable call to the room stream. It does not wait for the stream to
// acknowledge the call; failed acknowledgements are logged and counted by the ack watcher.
func (t *Transport) Send(target rpc.Target, msg rpc.Message) error {
	if t.isClosed() {
		return ErrClosed
	}
	data, err := rpc.Encode(t.local.ID, target, msg)
	if err != nil {
		return err
	}

	subject := rpcSubject(t.cfg, t.local.ID)
	future, err := t.pub.PublishMsgAsync(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Msg-Kind": []string{string(msg.Kind())},
			"Target":   []string{target.String()},
			"Peer-ID":  []string{t.local.ID.String()},
		},
	},
		jetstream.WithMsgID(uuid.NewString()),
		jetstream.WithExpectStream(streamName(t.cfg)),
		jetstream.WithStallWait(t.cfg.StallWait),
	)
	if err != nil {
		return fmt.Errorf("publish %s to JetStream: %w", msg.Kind(), err)
	}

	p := pendingAck{kind: msg.Kind(), subject: subject, future: future}
	select {
	case t.acks <- p:
	default:
		go t.awaitAck(p)
	}
	return nil
}

// FailedAcks returns how many calls the stream failed to acknowledge.
func (t *Transport) FailedAcks() uint64 {
	return t.failedAcks.Load()
}

func (t *Transport) startAckWatcher() {
	size := t.cfg.MaxPendingAcks
	if size <= 0 {
		size = DefaultConfig().MaxPendingAcks
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.acks = make(chan pendingAck, size)
	t.stopAcks = cancel
	t.acksDone = make(chan struct{})
	go t.watchAcks(ctx)
}

// watchAcks resolves acknowledgements in publish order.
func (t *Transport) watchAcks(ctx context.Context) {
	defer close(t.acksDone)
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-t.acks:
			select {
			case <-ctx.Done():
				return
			case <-t.resolve(p):
			}
		}
	}
}

func (t *Transport) awaitAck(p pendingAck) {
	<-t.resolve(p)
}

// resolve logs the outcome of one acknowledgement. The returned channel closes once it is known.
func (t *Transport) resolve(p pendingAck) <-chan struct{} {
	resolved := make(chan struct{})
	go func() {
		defer close(resolved)
		select {
		case ack := <-p.future.Ok():
			log.Debug().
				Str("subject", p.subject).
				Str("kind", string(p.kind)).
				Uint64("sequence", ack.Sequence).
				Msg("published call")
		case err := <-p.future.Err():
			t.failedAcks.Add(1)
			log.Error().
				Err(err).
				Str("subject", p.subject).
				Str("kind", string(p.kind)).
				Msg("call was not acknowledged by the stream")
		}
	}()
	return resolved
}

// Publish sends msg on the unreliable state channel.
func (t *Transport) Publish(msg rpc.Message) error {
	if t.isClosed() {
		return ErrClosed
	}
	data, err := rpc.Encode(t.local.ID, rpc.Others, msg)
	if err != nil {
		return err
	}
	if err := t.nc.Publish(stateSubject(t.cfg, t.local.ID), data); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind(), err)
	}
	return nil
}

// Poll drains the events received since the last call.
func (t *Transport) Poll() []rpc.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.events
	t.events = nil
	return out
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close announces the departure, drops the local peer's buffered calls and disconnects.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.announce(presence{Peer: t.local, Bye: true})
	t.purge(t.local.ID)
	t.shutdown()

	log.Info().Str("peer_id", t.local.ID.String()).Msg("left NATS room")
	return nil
}

func (t *Transport) shutdown() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	if t.js != nil {
		select {
		case <-t.js.PublishAsyncComplete():
		case <-t.clock.After(t.cfg.PublishTimeout):
			log.Warn().Int("pending", t.js.PublishAsyncPending()).Msg("leaving with unacknowledged calls")
		}
	}
	if t.stopAcks != nil {
		t.stopAcks()
		<-t.acksDone
	}
	if t.consume != nil {
		t.consume.Stop()
	}
	for _, sub := range t.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Str("subject", sub.Subject).Msg("unsubscribe failed")
		}
	}
	if t.nc != nil {
		if err := t.nc.Drain(); err != nil {
			t.nc.Close()
		}
	}
}
