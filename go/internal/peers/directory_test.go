package peers

import (
	"testing"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peer(id string, order uint64) models.Peer {
	return models.Peer{ID: models.PeerID(id), Name: id, JoinOrder: order}
}

func TestJoinLeave(t *testing.T) {
	d := NewDirectory("a")

	assert.True(t, d.OnPeerJoined(peer("b", 2)))
	assert.True(t, d.OnPeerJoined(peer("a", 1)))
	assert.False(t, d.OnPeerJoined(peer("a", 1)), "duplicate join")

	got, ok := d.Get("b")
	require.True(t, ok)
	assert.True(t, got.Alive)

	ids := []models.PeerID{}
	for _, p := range d.Peers() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []models.PeerID{"a", "b"}, ids)

	assert.True(t, d.OnPeerLeft(peer("b", 2)))
	assert.False(t, d.OnPeerLeft(peer("b", 2)))
	assert.False(t, d.Contains("b"))
	assert.Equal(t, 1, d.Len())
}

func TestAuthorityReports(t *testing.T) {
	d := NewDirectory("b")
	d.OnPeerJoined(peer("a", 1))
	d.OnPeerJoined(peer("b", 2))

	var changes [][2]models.PeerID
	d.OnAuthorityChanged(func(prev, next models.Peer) {
		changes = append(changes, [2]models.PeerID{prev.ID, next.ID})
	})

	d.ReportAuthority([]models.PeerID{"a"})
	cur, ok := d.CurrentAuthority()
	require.True(t, ok)
	assert.Equal(t, models.PeerID("a"), cur.ID)
	assert.False(t, d.IsLocalAuthority())

	// repeating the same report is not a change
	d.ReportAuthority([]models.PeerID{"a"})
	assert.Len(t, changes, 1)

	d.OnPeerLeft(peer("a", 1))
	_, ok = d.CurrentAuthority()
	assert.False(t, ok, "authority cleared until the transport reports the next one")

	d.ReportAuthority([]models.PeerID{"b"})
	assert.True(t, d.IsLocalAuthority())

	assert.Equal(t, [][2]models.PeerID{{"", "a"}, {"a", ""}, {"", "b"}}, changes)
}

func TestAmbiguousAuthority(t *testing.T) {
	d := NewDirectory("a")
	d.OnPeerJoined(peer("a", 1))
	d.OnPeerJoined(peer("b", 2))
	d.ReportAuthority([]models.PeerID{"a"})

	d.ReportAuthority([]models.PeerID{"a", "b"})
	assert.True(t, d.Ambiguous())
	assert.False(t, d.IsLocalAuthority())

	d.ReportAuthority(nil)
	assert.True(t, d.Ambiguous())

	d.ReportAuthority([]models.PeerID{"ghost"})
	assert.True(t, d.Ambiguous(), "unknown candidate")

	d.ReportAuthority([]models.PeerID{"a"})
	assert.False(t, d.Ambiguous())
	assert.True(t, d.IsLocalAuthority())
}
