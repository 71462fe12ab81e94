package session

import (
	"time"

	"github.com/mcdev12/roomsync/go/internal/clock"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/replicator"
)

// Config holds the gameplay constants of a room.
type Config struct {
	Clock      clock.Config      `yaml:"clock"`
	Replicator replicator.Config `yaml:"replicator"`

	TickRate     time.Duration `yaml:"tick_rate"`
	DeployDelay  time.Duration `yaml:"deploy_delay"`
	KillLogTTL   time.Duration `yaml:"kill_log_ttl"`
	KillReward   int           `yaml:"kill_reward"`
	ItemDropMin  time.Duration `yaml:"item_drop_min"`
	ItemDropMax  time.Duration `yaml:"item_drop_max"`
	ItemCatalog  int           `yaml:"item_catalog"`
	MaxItemDrops int           `yaml:"max_item_drops"`
	CommandQueue int           `yaml:"command_queue"`
	SpawnPoint   models.Vec3   `yaml:"spawn_point"`
}

// DefaultConfig returns the stock room settings.
func DefaultConfig() Config {
	return Config{
		Clock:        clock.DefaultConfig(),
		Replicator:   replicator.DefaultConfig(),
		TickRate:     50 * time.Millisecond,
		DeployDelay:  3 * time.Second,
		KillLogTTL:   5 * time.Second,
		KillReward:   100,
		ItemDropMin:  10 * time.Second,
		ItemDropMax:  180 * time.Second,
		ItemCatalog:  2,
		MaxItemDrops: 16,
		CommandQueue: 64,
	}
}
