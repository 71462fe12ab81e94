package peers

import (
	"sort"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/rs/zerolog/log"
)

// AuthorityListener is notified with the previous and the new authority. Either may be the
// zero Peer when the authority is unknown.
type AuthorityListener func(prev, next models.Peer)

// Directory tracks the connected peers and which one currently holds authority. It never
// elects: authority is whatever the transport last reported.
type Directory struct {
	local     models.PeerID
	peers     map[models.PeerID]models.Peer
	authority models.PeerID
	ambiguous bool
	listeners []AuthorityListener
}

// NewDirectory creates an empty directory for the given local peer.
func NewDirectory(local models.PeerID) *Directory {
	return &Directory{
		local: local,
		peers: make(map[models.PeerID]models.Peer),
	}
}

// Local returns the local peer id.
func (d *Directory) Local() models.PeerID {
	return d.local
}

// OnPeerJoined registers a peer. Returns false if it was already known.
func (d *Directory) OnPeerJoined(p models.Peer) bool {
	if _, exists := d.peers[p.ID]; exists {
		return false
	}
	p.Alive = true
	d.peers[p.ID] = p
	log.Debug().
		Str("peer_id", p.ID.String()).
		Str("name", p.Name).
		Int("peers", len(d.peers)).
		Msg("peer joined")
	return true
}

// OnPeerLeft removes a peer. If it held authority the directory keeps no authority until the
// transport reports the next one.
func (d *Directory) OnPeerLeft(p models.Peer) bool {
	if _, exists := d.peers[p.ID]; !exists {
		return false
	}
	delete(d.peers, p.ID)
	log.Debug().
		Str("peer_id", p.ID.String()).
		Int("peers", len(d.peers)).
		Msg("peer left")

	if d.authority == p.ID {
		d.setAuthority("", false)
	}
	return true
}

// ReportAuthority applies the transport's authority report. Anything but a single known
// candidate is treated as ambiguous and clears the authority.
func (d *Directory) ReportAuthority(candidates []models.PeerID) {
	if len(candidates) != 1 {
		log.Error().
			Int("candidates", len(candidates)).
			Msg("authority ambiguous; clock advancement stalled")
		d.setAuthority("", true)
		return
	}

	id := candidates[0]
	if _, known := d.peers[id]; !known {
		log.Error().
			Str("peer_id", id.String()).
			Msg("authority reported for unknown peer; clock advancement stalled")
		d.setAuthority("", true)
		return
	}
	d.setAuthority(id, false)
}

func (d *Directory) setAuthority(id models.PeerID, ambiguous bool) {
	d.ambiguous = ambiguous
	if d.authority == id {
		return
	}
	prev := d.peers[d.authority]
	if d.authority != "" && prev.ID == "" {
		prev = models.Peer{ID: d.authority}
	}
	d.authority = id
	next := d.peers[id]

	log.Info().
		Str("prev", prev.ID.String()).
		Str("next", next.ID.String()).
		Bool("local", id != "" && id == d.local).
		Msg("authority changed")

	for _, l := range d.listeners {
		l(prev, next)
	}
}

// OnAuthorityChanged registers a listener for authority changes.
func (d *Directory) OnAuthorityChanged(l AuthorityListener) {
	d.listeners = append(d.listeners, l)
}

// CurrentAuthority returns the authority peer, if one is known.
func (d *Directory) CurrentAuthority() (models.Peer, bool) {
	if d.authority == "" {
		return models.Peer{}, false
	}
	p, ok := d.peers[d.authority]
	return p, ok
}

// IsAuthority reports whether id is the current authority.
func (d *Directory) IsAuthority(id models.PeerID) bool {
	return id != "" && d.authority == id
}

// IsLocalAuthority reports whether the local peer holds authority.
func (d *Directory) IsLocalAuthority() bool {
	return d.IsAuthority(d.local)
}

// Ambiguous reports whether the last authority report was rejected.
func (d *Directory) Ambiguous() bool {
	return d.ambiguous
}

// Contains reports whether id is a live peer.
func (d *Directory) Contains(id models.PeerID) bool {
	_, ok := d.peers[id]
	return ok
}

// Get returns a live peer by id.
func (d *Directory) Get(id models.PeerID) (models.Peer, bool) {
	p, ok := d.peers[id]
	return p, ok
}

// Peers returns live peers in join order.
func (d *Directory) Peers() []models.Peer {
	out := make([]models.Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Len returns the number of live peers.
func (d *Directory) Len() int {
	return len(d.peers)
}
