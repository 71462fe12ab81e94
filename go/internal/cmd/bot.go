package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/session"
	"github.com/mcdev12/roomsync/go/internal/transport/loopback"
	"github.com/rs/zerolog/log"
)

// bot is a simulated peer for loopback rooms. It deploys whenever it can and walks in a circle.
type bot struct {
	name    string
	clock   clockwork.Clock
	session *session.Session
	rng     *rand.Rand
	radius  float64
	phase   float64
}

func newBot(network *loopback.Network, i int, cfg session.Config) *bot {
	name := fmt.Sprintf("BOT-%d", i+1)
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(i)))
	return &bot{
		name:    name,
		clock:   clockwork.NewRealClock(),
		session: session.New(network.Join(name), cfg, session.WithRand(rng)),
		rng:     rng,
		radius:  2 + rng.Float64()*4,
		phase:   rng.Float64() * 2 * math.Pi,
	}
}

func (b *bot) run(ctx context.Context) {
	go b.drive(ctx)
	if err := b.session.Run(ctx); err != nil {
		log.Error().Err(err).Str("bot", b.name).Msg("bot session failed")
	}
}

func (b *bot) drive(ctx context.Context) {
	ticker := b.clock.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	start := b.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			view := b.session.View()
			if view == nil {
				continue
			}
			if view.Stopped {
				return
			}
			if !view.Deployed {
				b.submit(session.DeployCommand{})
				continue
			}

			t := now.Sub(start).Seconds()*0.5 + b.phase
			state := models.AvatarState{
				Position:        models.Vec3{X: math.Cos(t) * b.radius, Y: math.Sin(t) * b.radius},
				Scale:           models.Vec3{X: 1, Y: 1, Z: 1},
				Angle:           math.Mod(t*180/math.Pi+90, 360),
				InputHorizontal: -math.Sin(t),
			}
			b.submit(session.AvatarCommand{State: state})
			if b.rng.Intn(50) == 0 {
				b.submit(session.JumpCommand{})
			}
		}
	}
}

// submit queues a command without waiting for it to apply.
func (b *bot) submit(cmd session.Command) {
	go func() {
		err := <-b.session.Submit(cmd)
		if err != nil && !errors.Is(err, session.ErrNotPlaying) && !errors.Is(err, session.ErrRespawnPending) {
			log.Debug().Err(err).Str("bot", b.name).Msg("bot command rejected")
		}
	}()
}
