package resilience

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures every breaker in a Group.
type Settings struct {
	// Threshold is the number of consecutive failures that opens a breaker.
	Threshold int
	// Cooldown is how long an open breaker rejects calls before letting a
	// single probe through.
	Cooldown time.Duration
	// OnStateChange is called outside the lock whenever a breaker moves.
	OnStateChange func(key string, from, to State)
}

// DefaultSettings trips after five straight failures and probes after 30s.
func DefaultSettings() Settings {
	return Settings{Threshold: 5, Cooldown: 30 * time.Second}
}

// Breaker guards calls to one upstream.
type Breaker struct {
	key      string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// State returns the current state, promoting an expired open breaker to
// half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Do runs fn unless the breaker is open. In half-open state only one probe
// runs at a time; concurrent callers are rejected until it finishes.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err == nil)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	var from, to State
	changed := false

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.settings.Cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		from, to, changed = b.state, StateHalfOpen, true
		b.state = StateHalfOpen
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	if changed {
		b.notify(from, to)
	}
	return nil
}

func (b *Breaker) after(ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case ok:
		b.failures = 0
		b.state = StateClosed
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
	default:
		b.failures++
		if b.failures >= b.settings.Threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	b.probing = false
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.key, from, to)
	}
}

// Group lazily creates one breaker per key, typically a host name.
type Group struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a breaker group. Non-positive settings fall back to
// DefaultSettings.
func NewGroup(settings Settings) *Group {
	def := DefaultSettings()
	if settings.Threshold <= 0 {
		settings.Threshold = def.Threshold
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = def.Cooldown
	}
	return &Group{settings: settings, now: time.Now, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it closed.
func (g *Group) Get(key string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[key]
	if !ok {
		b = &Breaker{key: key, settings: g.settings, now: g.now}
		g.breakers[key] = b
	}
	return b
}

// Do runs fn through the breaker for key.
func (g *Group) Do(key string, fn func() error) error {
	return g.Get(key).Do(fn)
}

// States reports every known breaker that is not closed, sorted by key.
func (g *Group) States() map[string]string {
	g.mu.Lock()
	keys := make([]string, 0, len(g.breakers))
	for k := range g.breakers {
		keys = append(keys, k)
	}
	g.mu.Unlock()
	sort.Strings(keys)

	out := make(map[string]string)
	for _, k := range keys {
		if s := g.Get(k).State(); s != StateClosed {
			out[k] = s.String()
		}
	}
	return out
}
