package models

// PeerID is the opaque, stable identifier of a connected peer. Avatars and player records
// are keyed by the id of the peer that owns them.
type PeerID string

// String implements fmt.Stringer
func (id PeerID) String() string {
	return string(id)
}

// Peer represents a connected session participant.
type Peer struct {
	ID        PeerID `json:"id"`
	Name      string `json:"name"`
	Alive     bool   `json:"alive"`
	JoinOrder uint64 `json:"join_order"` // monotonic, assigned by the transport
}

// Before reports whether p joined before other. Ties on JoinOrder fall back to the id so the
// ordering is total.
func (p Peer) Before(other Peer) bool {
	if p.JoinOrder != other.JoinOrder {
		return p.JoinOrder < other.JoinOrder
	}
	return p.ID < other.ID
}
