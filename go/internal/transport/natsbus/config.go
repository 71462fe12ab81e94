package natsbus

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds configuration for the NATS room transport
type Config struct {
	URL             string
	Room            string
	StreamPrefix    string // stream name is <StreamPrefix>_<ROOM>
	SubjectPrefix   string // subjects are <SubjectPrefix>.<room>.{rpc,state,presence}
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // how long buffered calls are kept for late joiners
	DuplicateWindow time.Duration // window for duplicate detection
	Replicas        int
	PublishTimeout  time.Duration // how long to wait for a call's stream acknowledgement
	MaxPendingAcks  int           // unacknowledged calls before publishing stalls
	StallWait       time.Duration // max time a publish may stall on MaxPendingAcks
	Heartbeat       time.Duration // presence announce interval
	PeerTimeout     time.Duration // a peer silent for this long is considered gone
	DiscoveryWait   time.Duration // how long to collect existing peers before replay
	MaxHeld         int           // max calls held per sender whose presence has not arrived
}

// DefaultConfig returns default NATS room transport configuration
func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		Room:            "lobby",
		StreamPrefix:    "ROOMSYNC",
		SubjectPrefix:   "room",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          6 * time.Hour,
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
		PublishTimeout:  2 * time.Second,
		MaxPendingAcks:  256,
		StallWait:       50 * time.Millisecond,
		Heartbeat:       time.Second,
		PeerTimeout:     5 * time.Second,
		DiscoveryWait:   300 * time.Millisecond,
		MaxHeld:         256,
	}
}
