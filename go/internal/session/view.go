package session

import (
	"time"

	"github.com/mcdev12/roomsync/go/internal/models"
)

// View is an immutable copy of the session state, published once per tick for readers on
// other goroutines.
type View struct {
	Local              models.Peer             `json:"local"`
	Authority          models.PeerID           `json:"authority,omitempty"`
	AuthorityAmbiguous bool                    `json:"authority_ambiguous"`
	Clock              models.RoomClock        `json:"clock"`
	TimeLeftText       string                  `json:"time_left_text"`
	Deployed           bool                    `json:"deployed"`
	RespawnRemaining   time.Duration           `json:"respawn_remaining_ns"`
	Peers              []models.Peer           `json:"peers"`
	Records            []models.PlayerRecord   `json:"records"`
	Ranking            []models.PlayerRecord   `json:"ranking"`
	KillLog            []models.KillLogEntry   `json:"kill_log"`
	Avatars            []models.EntitySnapshot `json:"avatars"`
	Actions            []models.AvatarAction   `json:"actions"`
	Weapons            map[models.PeerID]int   `json:"weapons"`
	Items              []models.ItemDrop       `json:"items"`
	Tick               uint64                  `json:"tick"`
	Stopped            bool                    `json:"stopped"`
}

// Record returns the record of id from the view.
func (v *View) Record(id models.PeerID) (models.PlayerRecord, bool) {
	for _, rec := range v.Records {
		if rec.EntityID == id {
			return rec, true
		}
	}
	return models.PlayerRecord{}, false
}

// View returns the state published at the end of the last tick. Safe for concurrent use.
func (s *Session) View() *View {
	return s.view.Load()
}

func (s *Session) publishView() {
	v := &View{
		Local:              s.local,
		AuthorityAmbiguous: s.dir.Ambiguous(),
		Clock:              s.clock.State(),
		TimeLeftText:       s.clock.TimeLeftText(),
		Deployed:           s.deployed,
		RespawnRemaining:   s.RespawnRemaining(),
		Peers:              s.dir.Peers(),
		Records:            s.records.Records(),
		Ranking:            s.records.Ranking(),
		KillLog:            s.KillLog(),
		Avatars:            s.avatars.Snapshots(),
		Actions:            append([]models.AvatarAction(nil), s.actions...),
		Weapons:            make(map[models.PeerID]int, len(s.weapons)),
		Items:              append([]models.ItemDrop(nil), s.drops...),
		Tick:               s.ticks,
		Stopped:            s.stopped,
	}
	if p, ok := s.dir.CurrentAuthority(); ok {
		v.Authority = p.ID
	}
	for id, w := range s.weapons {
		v.Weapons[id] = w
	}
	s.view.Store(v)
}
