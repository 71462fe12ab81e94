package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/roomsync/go/internal/config"
	"github.com/mcdev12/roomsync/go/internal/gateway"
	"github.com/mcdev12/roomsync/go/internal/rpc"
	"github.com/mcdev12/roomsync/go/internal/session"
	"github.com/mcdev12/roomsync/go/internal/transport/loopback"
	"github.com/mcdev12/roomsync/go/internal/transport/natsbus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	cfg := config.NewConfigFromEnv()
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tuning")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		transport rpc.Transport
		bots      []*bot
	)
	switch cfg.Transport {
	case config.TransportNATS:
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		t, err := natsbus.Connect(connectCtx, cfg.NATSConfig(), cfg.PlayerName)
		connectCancel()
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATSURL).Msg("failed to join room")
		}
		transport = t
	case config.TransportLoopback:
		network := loopback.NewNetwork()
		transport = network.Join(cfg.PlayerName)
		for i := 0; i < cfg.Bots; i++ {
			bots = append(bots, newBot(network, i, tuning))
		}
	default:
		log.Fatal().Str("transport", cfg.Transport).Msg("unknown transport")
	}

	metrics := session.NewCounterMetrics()
	room := session.New(transport, tuning, session.WithMetrics(metrics))

	log.Info().
		Str("transport", cfg.Transport).
		Str("room", cfg.Room).
		Str("player", cfg.PlayerName).
		Str("peer_id", room.Local().ID.String()).
		Int("bots", len(bots)).
		Msg("starting room session")

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Addr = cfg.GatewayAddr
	gatewayService := gateway.NewService(gatewayConfig, room, metrics, nil)
	server := gatewayService.NewServer()

	sessionDone := make(chan struct{})
	go func() {
		defer close(sessionDone)
		if err := room.Run(ctx); err != nil {
			log.Error().Err(err).Msg("session loop failed")
		}
	}()
	for _, b := range bots {
		go b.run(ctx)
	}

	go gatewayService.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-sessionDone:
		log.Info().Msg("session left the room")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancelling leaves the room and closes the transport.
	cancel()
	select {
	case <-sessionDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("session did not stop before shutdown timeout")
	}

	log.Info().Msg("room session shutdown complete")
}
