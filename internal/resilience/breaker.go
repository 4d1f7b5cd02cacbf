package resilience

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/roberjo/AuraStream-sub000/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeIgnored releases a permit without counting for or against the target.
	OutcomeIgnored
)

type BreakerSettings struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
}

// Permit is handed out by Allow and must be returned through Record exactly once.
type Permit struct {
	generation uint64
	trial      bool
}

// Breaker tracks one external target. Failures inside Window are counted; reaching
// FailureThreshold opens the circuit. After Cooldown the next Allow becomes the single
// half-open trial; every other caller is rejected until that trial reports back.
type Breaker struct {
	name     string
	settings BreakerSettings
	clock    clockwork.Clock
	onChange func(name string, from, to State)

	mu         sync.Mutex
	state      State
	generation uint64
	failures   []time.Time
	openedAt   time.Time
	trialOut   bool
}

func NewBreaker(name string, settings BreakerSettings, clock clockwork.Clock, onChange func(name string, from, to State)) *Breaker {
	return &Breaker{
		name:     name,
		settings: settings,
		clock:    clock,
		onChange: onChange,
	}
}

func (b *Breaker) Name() string { return b.name }

// State reports the current state, resolving an elapsed cooldown to half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooldownElapsed() {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) Allow() (Permit, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return Permit{generation: b.generation}, nil
	case StateOpen:
		if !b.cooldownElapsed() {
			return Permit{}, domain.ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.trialOut = true
		return Permit{generation: b.generation, trial: true}, nil
	default:
		if b.trialOut {
			return Permit{}, domain.ErrCircuitOpen
		}
		b.trialOut = true
		return Permit{generation: b.generation, trial: true}, nil
	}
}

// Record reports the outcome of a permitted call. Permits issued before the last state
// change are stale and only release themselves.
func (b *Breaker) Record(p Permit, outcome Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.generation != b.generation {
		return
	}

	if p.trial {
		b.trialOut = false
		switch outcome {
		case OutcomeSuccess:
			b.failures = b.failures[:0]
			b.setState(StateClosed)
		case OutcomeFailure:
			b.openedAt = b.clock.Now()
			b.setState(StateOpen)
		}
		return
	}

	if outcome != OutcomeFailure || b.state != StateClosed {
		return
	}

	now := b.clock.Now()
	b.failures = append(b.failures, now)
	b.pruneFailures(now)
	if len(b.failures) >= b.settings.FailureThreshold {
		b.failures = b.failures[:0]
		b.openedAt = now
		b.setState(StateOpen)
	}
}

func (b *Breaker) pruneFailures(now time.Time) {
	cutoff := now.Add(-b.settings.Window)
	keep := 0
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			b.failures[keep] = ts
			keep++
		}
	}
	b.failures = b.failures[:keep]
}

func (b *Breaker) cooldownElapsed() bool {
	return !b.clock.Now().Before(b.openedAt.Add(b.settings.Cooldown))
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.generation++
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
