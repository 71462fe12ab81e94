package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/roomsync/go/internal/session"
	"github.com/mcdev12/roomsync/go/internal/transport/natsbus"
	"gopkg.in/yaml.v3"
)

const (
	TransportLoopback = "loopback"
	TransportNATS     = "nats"
)

// Config holds process settings read from ROOMSYNC_* environment variables.
type Config struct {
	Transport   string
	PlayerName  string
	Room        string
	NATSURL     string
	GatewayAddr string
	TuningPath  string
	LogLevel    string
	Bots        int
}

// NewConfigFromEnv reads ROOMSYNC_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		Transport:   getEnv("ROOMSYNC_TRANSPORT", TransportLoopback),
		PlayerName:  getEnv("ROOMSYNC_PLAYER_NAME", "GUEST"),
		Room:        getEnv("ROOMSYNC_ROOM", "lobby"),
		NATSURL:     getEnv("ROOMSYNC_NATS_URL", "nats://localhost:4222"),
		GatewayAddr: getEnv("ROOMSYNC_GATEWAY_ADDR", ":8080"),
		TuningPath:  getEnv("ROOMSYNC_TUNING", ""),
		LogLevel:    getEnv("ROOMSYNC_LOG_LEVEL", "info"),
		Bots:        getEnvAsInt("ROOMSYNC_BOTS", 1),
	}
}

// NATSConfig returns the room transport settings for this process.
func (c Config) NATSConfig() natsbus.Config {
	cfg := natsbus.DefaultConfig()
	cfg.URL = c.NATSURL
	cfg.Room = c.Room
	return cfg
}

// LoadTuning reads the gameplay constants from a YAML file. Keys missing from the file keep
// their defaults. An empty path returns the defaults.
func LoadTuning(path string) (session.Config, error) {
	cfg := session.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, fmt.Errorf("failed to read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return session.Config{}, fmt.Errorf("failed to parse tuning file: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return session.Config{}, fmt.Errorf("invalid tuning file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the session cannot run with.
func Validate(cfg session.Config) error {
	var errs []error
	positive := map[string]time.Duration{
		"clock.game_duration":      cfg.Clock.GameDuration,
		"clock.extension_duration": cfg.Clock.ExtensionDuration,
		"tick_rate":                cfg.TickRate,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if cfg.DeployDelay < 0 {
		errs = append(errs, errors.New("deploy_delay must not be negative"))
	}
	if cfg.ItemDropMin > cfg.ItemDropMax {
		errs = append(errs, fmt.Errorf("item_drop_min %s exceeds item_drop_max %s", cfg.ItemDropMin, cfg.ItemDropMax))
	}
	if cfg.Replicator.Smoothing <= 0 {
		errs = append(errs, errors.New("replicator.smoothing must be positive"))
	}
	if cfg.KillReward < 0 {
		errs = append(errs, errors.New("kill_reward must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
