package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Config holds configuration for the room gateway
type Config struct {
	Addr             string
	StreamInterval   time.Duration
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the room gateway
func DefaultConfig() Config {
	return Config{
		Addr:             ":8080",
		StreamInterval:   100 * time.Millisecond,
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// Service exposes one room session to browsers and tools: a WebSocket stream of views that
// accepts commands, JSON state endpoints, and Connect queries.
type Service struct {
	config  Config
	clock   clockwork.Clock
	room    RoomSession
	manager *ConnectionManager
	state   *StateHandler
	query   *QueryService
}

// NewService creates a new room gateway service
func NewService(config Config, room RoomSession, stats StatsProvider, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	manager := NewConnectionManager(config.ConnectionConfig, room, clock)
	return &Service{
		config:  config,
		clock:   clock,
		room:    room,
		manager: manager,
		state:   NewStateHandler(room, stats, manager),
		query:   NewQueryService(room),
	}
}

// Handler returns the routed handler wrapped with CORS
func (s *Service) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.state.Routes(s.query))
}

// NewServer builds the HTTP/2 cleartext server for the gateway
func (s *Service) NewServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Start runs the connection manager and streams room views until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Str("addr", s.config.Addr).Msg("starting room gateway service")
	go s.manager.Start(ctx)
	s.streamViews(ctx)
	log.Info().Msg("room gateway service stopped")
}

// streamViews pushes the latest view whenever the session has ticked since the last push.
func (s *Service) streamViews(ctx context.Context) {
	ticker := s.clock.NewTicker(s.config.StreamInterval)
	defer ticker.Stop()

	var lastTick uint64
	sent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			view := s.room.View()
			if view == nil || (sent && view.Tick == lastTick) {
				continue
			}
			lastTick = view.Tick
			sent = true
			s.manager.Broadcast(RoomEvent{Type: EventTypeView, View: view})
		}
	}
}
