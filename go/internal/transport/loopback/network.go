package loopback

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when sending through an endpoint that left the network.
var ErrClosed = errors.New("loopback endpoint closed")

// LossFunc decides whether an unreliable message from one peer to another is dropped.
type LossFunc func(from, to models.PeerID) bool

type bufferedCall struct {
	from   models.PeerID
	target rpc.Target
	msg    rpc.Message
}

// Network is an in-process room. Every reliable call is appended to the recipients' queues
// under one lock, which gives all peers the same total order. The peer with the lowest join
// order holds authority.
type Network struct {
	mu        sync.Mutex
	nextOrder uint64
	endpoints map[models.PeerID]*Endpoint
	buffered  []bufferedCall
	authority models.PeerID
	loss      LossFunc
}

// NewNetwork creates an empty room.
func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[models.PeerID]*Endpoint),
	}
}

// SetLoss installs a loss function for the unreliable channel.
func (n *Network) SetLoss(fn LossFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loss = fn
}

// Join connects a new peer with a generated id.
func (n *Network) Join(name string) *Endpoint {
	return n.JoinAs(models.PeerID(uuid.NewString()), name)
}

// JoinAs connects a new peer with the given id. The endpoint's first poll reports every
// existing peer, then itself, then the buffered history, then the authority.
func (n *Network) JoinAs(id models.PeerID, name string) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextOrder++
	ep := &Endpoint{
		net:  n,
		peer: models.Peer{ID: id, Name: name, Alive: true, JoinOrder: n.nextOrder},
	}

	for _, other := range n.liveLocked() {
		ep.queue = append(ep.queue, rpc.PeerJoined{Peer: other.peer})
		other.queue = append(other.queue, rpc.PeerJoined{Peer: ep.peer})
	}
	ep.queue = append(ep.queue, rpc.PeerJoined{Peer: ep.peer})
	for _, call := range n.buffered {
		ep.queue = append(ep.queue, rpc.Delivery{From: call.from, Msg: call.msg})
	}
	n.endpoints[id] = ep

	log.Debug().
		Str("peer_id", id.String()).
		Int("replayed", len(n.buffered)).
		Msg("loopback peer joined")

	if n.authority == "" {
		n.electLocked()
	} else {
		ep.queue = append(ep.queue, rpc.AuthorityChanged{Candidates: []models.PeerID{n.authority}})
	}
	return ep
}

// ReportAuthority pushes an arbitrary authority report to every peer. Used to simulate a
// misbehaving session library.
func (n *Network) ReportAuthority(candidates ...models.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ep := range n.liveLocked() {
		ep.queue = append(ep.queue, rpc.AuthorityChanged{Candidates: candidates})
	}
}

// Authority returns the peer currently holding authority.
func (n *Network) Authority() models.PeerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.authority
}

// Peers returns the live peers in join order.
func (n *Network) Peers() []models.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	live := n.liveLocked()
	out := make([]models.Peer, len(live))
	for i, ep := range live {
		out[i] = ep.peer
	}
	return out
}

// BufferedLen returns the number of calls retained for late joiners.
func (n *Network) BufferedLen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.buffered)
}

func (n *Network) liveLocked() []*Endpoint {
	out := make([]*Endpoint, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].peer.Before(out[j].peer) })
	return out
}

func (n *Network) electLocked() {
	live := n.liveLocked()
	if len(live) == 0 {
		n.authority = ""
		return
	}
	n.authority = live[0].peer.ID
	for _, ep := range live {
		ep.queue = append(ep.queue, rpc.AuthorityChanged{Candidates: []models.PeerID{n.authority}})
	}
	log.Debug().Str("peer_id", n.authority.String()).Msg("loopback authority elected")
}

func (n *Network) send(from models.PeerID, target rpc.Target, msg rpc.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, live := n.endpoints[from]; !live {
		return ErrClosed
	}
	for _, ep := range n.liveLocked() {
		if target.Includes(from, ep.peer.ID) {
			ep.queue = append(ep.queue, rpc.Delivery{From: from, Msg: msg})
		}
	}
	if target.Buffered() {
		n.buffered = append(n.buffered, bufferedCall{from: from, target: target, msg: msg})
	}
	return nil
}

func (n *Network) publish(from models.PeerID, msg rpc.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, live := n.endpoints[from]; !live {
		return ErrClosed
	}
	for _, ep := range n.liveLocked() {
		if ep.peer.ID == from {
			continue
		}
		if n.loss != nil && n.loss(from, ep.peer.ID) {
			continue
		}
		ep.queue = append(ep.queue, rpc.Delivery{From: from, Msg: msg, Unreliable: true})
	}
	return nil
}

// leave removes the endpoint and drops its buffered calls so later joiners do not replay
// history of a peer that is gone.
func (n *Network) leave(ep *Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := ep.peer.ID
	if _, live := n.endpoints[id]; !live {
		return
	}
	delete(n.endpoints, id)

	kept := n.buffered[:0]
	for _, call := range n.buffered {
		if call.from != id {
			kept = append(kept, call)
		}
	}
	n.buffered = kept

	left := ep.peer
	left.Alive = false
	for _, other := range n.liveLocked() {
		other.queue = append(other.queue, rpc.PeerLeft{Peer: left})
	}

	log.Debug().Str("peer_id", id.String()).Msg("loopback peer left")

	if n.authority == id {
		n.authority = ""
		n.electLocked()
	}
}
