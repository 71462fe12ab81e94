package models

import "time"

// MaxHealth is the health a freshly deployed avatar starts with and the upper clamp bound.
const MaxHealth = 100

// DefaultPlayerName is used when a peer joins without a display name.
const DefaultPlayerName = "GUEST"

// PlayerRecord is the replicated per-player data, independent of avatar presence.
type PlayerRecord struct {
	EntityID PeerID `json:"entity_id"`
	Name     string `json:"name"`
	Health   int    `json:"health"`
	Score    int    `json:"score"`
}

// NewPlayerRecord returns a record with full health and no score.
func NewPlayerRecord(id PeerID, name string) PlayerRecord {
	if name == "" {
		name = DefaultPlayerName
	}
	return PlayerRecord{
		EntityID: id,
		Name:     name,
		Health:   MaxHealth,
		Score:    0,
	}
}

// ClampHealth bounds a health value to [0, MaxHealth].
func ClampHealth(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxHealth {
		return MaxHealth
	}
	return v
}

// KillLogEntry is one "attacker killed victim" line shown to players for a limited time.
type KillLogEntry struct {
	Attacker  string    `json:"attacker"`
	Victim    string    `json:"victim"`
	ExpiresAt time.Time `json:"expires_at"`
}
