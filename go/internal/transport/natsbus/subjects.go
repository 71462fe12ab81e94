package natsbus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/rpc"
)

// roomToken reduces a room code to a single subject token.
func roomToken(room string) string {
	var b strings.Builder
	for _, r := range room {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

func streamName(cfg Config) string {
	return fmt.Sprintf("%s_%s", cfg.StreamPrefix, strings.ToUpper(roomToken(cfg.Room)))
}

func roomSubject(cfg Config, kind string) string {
	return fmt.Sprintf("%s.%s.%s", cfg.SubjectPrefix, roomToken(cfg.Room), kind)
}

func rpcSubject(cfg Config, sender models.PeerID) string {
	return fmt.Sprintf("%s.%s", roomSubject(cfg, "rpc"), sender)
}

func stateSubject(cfg Config, sender models.PeerID) string {
	return fmt.Sprintf("%s.%s", roomSubject(cfg, "state"), sender)
}

// shouldDeliver decides whether a call read from the stream reaches the local peer. Calls
// published before the local peer joined are history: only buffered ones are replayed.
func shouldDeliver(env rpc.Envelope, streamSeq, joinSeq uint64, local models.PeerID) bool {
	if streamSeq <= joinSeq && !env.Target.Buffered() {
		return false
	}
	return env.Target.Includes(env.From, local)
}

// electAuthority picks the earliest joined live peer.
func electAuthority(live []models.Peer) (models.PeerID, bool) {
	if len(live) == 0 {
		return "", false
	}
	sorted := append([]models.Peer(nil), live...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted[0].ID, true
}
