package rpc

import (
	"fmt"

	"github.com/mcdev12/roomsync/go/internal/models"
)

// TargetKind selects the recipients of a reliable call.
type TargetKind string

const (
	// TargetAll delivers to every live peer, the sender included.
	TargetAll TargetKind = "all"
	// TargetAllBuffered is TargetAll plus replay to peers that join later.
	TargetAllBuffered TargetKind = "all_buffered"
	// TargetOthers delivers to every live peer except the sender.
	TargetOthers TargetKind = "others"
	// TargetPeer delivers to exactly one peer.
	TargetPeer TargetKind = "peer"
)

// Target is a recipient set.
type Target struct {
	Kind TargetKind    `json:"kind"`
	Peer models.PeerID `json:"peer,omitempty"`
}

var (
	All         = Target{Kind: TargetAll}
	AllBuffered = Target{Kind: TargetAllBuffered}
	Others      = Target{Kind: TargetOthers}
)

// To targets a single peer.
func To(id models.PeerID) Target {
	return Target{Kind: TargetPeer, Peer: id}
}

// Includes reports whether a message from sender addressed to t reaches recipient.
func (t Target) Includes(sender, recipient models.PeerID) bool {
	switch t.Kind {
	case TargetAll, TargetAllBuffered:
		return true
	case TargetOthers:
		return sender != recipient
	case TargetPeer:
		return t.Peer == recipient
	default:
		return false
	}
}

// Buffered reports whether the call is retained for late joiners.
func (t Target) Buffered() bool {
	return t.Kind == TargetAllBuffered
}

// String implements fmt.Stringer
func (t Target) String() string {
	if t.Kind == TargetPeer {
		return fmt.Sprintf("peer:%s", t.Peer)
	}
	return string(t.Kind)
}

// Event is something a transport reports to a peer. The set is closed to this package.
type Event interface {
	isEvent()
}

// Delivery is an incoming message. Reliable deliveries arrive in the same total order on every
// peer; unreliable ones may be lost or reordered.
type Delivery struct {
	From       models.PeerID
	Msg        Message
	Unreliable bool
}

// PeerJoined reports a peer that is now part of the session. On connect a transport reports
// every existing peer, then the local peer itself.
type PeerJoined struct {
	Peer models.Peer
}

// PeerLeft reports a peer that disconnected.
type PeerLeft struct {
	Peer models.Peer
}

// AuthorityChanged reports the transport's view of the authority. Anything other than exactly
// one candidate means the authority is ambiguous.
type AuthorityChanged struct {
	Candidates []models.PeerID
}

func (Delivery) isEvent()         {}
func (PeerJoined) isEvent()       {}
func (PeerLeft) isEvent()         {}
func (AuthorityChanged) isEvent() {}

// Transport is the session library collaborator: peer identity, reliable ordered calls to a
// target set, an unreliable continuous-state channel, and membership notifications.
//
// Poll must not block. Send and Publish are fire-and-forget.
type Transport interface {
	Local() models.Peer
	Send(target Target, msg Message) error
	Publish(msg Message) error
	Poll() []Event
	Close() error
}
