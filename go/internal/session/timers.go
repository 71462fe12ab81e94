package session

import (
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type timerName string

const (
	timerRespawn  timerName = "respawn"
	timerItemDrop timerName = "item_drop"
)

type scheduledTimer struct {
	timer    clockwork.Timer
	deadline time.Time
}

// timers holds at most one pending timer per purpose. Fired timers are collected by polling
// from the tick, so callbacks always run on the session goroutine.
type timers struct {
	clock  clockwork.Clock
	active map[timerName]scheduledTimer
}

func newTimers(clock clockwork.Clock) *timers {
	return &timers{
		clock:  clock,
		active: make(map[timerName]scheduledTimer),
	}
}

// schedule arms the named timer, replacing any pending one.
func (t *timers) schedule(name timerName, d time.Duration) {
	next := scheduledTimer{
		timer:    t.clock.NewTimer(d),
		deadline: t.clock.Now().Add(d),
	}
	if existing, ok := t.active[name]; ok {
		stopAndDrainTimer(existing.timer)
		log.Debug().Str("timer", string(name)).Msg("replaced existing timer")
	}
	t.active[name] = next
}

func (t *timers) cancel(name timerName) bool {
	existing, ok := t.active[name]
	if !ok {
		return false
	}
	stopAndDrainTimer(existing.timer)
	delete(t.active, name)
	return true
}

func (t *timers) pending(name timerName) bool {
	_, ok := t.active[name]
	return ok
}

func (t *timers) remaining(name timerName) time.Duration {
	existing, ok := t.active[name]
	if !ok {
		return 0
	}
	left := existing.deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// due removes and returns the timers that fired since the last poll, in name order.
func (t *timers) due() []timerName {
	var fired []timerName
	for name, st := range t.active {
		select {
		case <-st.timer.Chan():
			fired = append(fired, name)
		default:
		}
	}
	for _, name := range fired {
		delete(t.active, name)
	}
	sort.Slice(fired, func(i, j int) bool { return fired[i] < fired[j] })
	return fired
}

func (t *timers) stopAll() {
	for name, st := range t.active {
		stopAndDrainTimer(st.timer)
		delete(t.active, name)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a stale fire is never observed.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
