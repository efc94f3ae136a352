package sandbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator is anything that can answer a generate request.
type Generator interface {
	Generate(ctx context.Context, script *Script, payload interface{}) (*Result, error)
}

// Call is an in-flight bridge request.
type Call struct {
	ID      string    `json:"request_id"`
	Started time.Time `json:"started"`
}

// Bridge correlates generate requests with their results by request ID and
// keeps track of the ones still pending.
type Bridge struct {
	target Generator

	mu      sync.Mutex
	pending map[string]Call
}

// NewBridge creates a bridge in front of target, usually a *Pool.
func NewBridge(target Generator) *Bridge {
	return &Bridge{
		target:  target,
		pending: make(map[string]Call),
	}
}

type requestIDKey struct{}

// WithRequestID makes Bridge.Generate use id for the call made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Generate assigns a request ID and forwards the request. The ID comes from
// WithRequestID when set and not already in flight, otherwise it is a new
// uuid. The ID is set on the result even when generation fails.
func (b *Bridge) Generate(ctx context.Context, script *Script, payload interface{}) (*Result, error) {
	id, _ := ctx.Value(requestIDKey{}).(string)

	b.mu.Lock()
	if _, taken := b.pending[id]; id == "" || taken {
		id = uuid.NewString()
	}
	b.pending[id] = Call{ID: id, Started: time.Now()}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	result, err := b.target.Generate(ctx, script, payload)
	if result == nil {
		result = &Result{Error: err}
	}
	result.RequestID = id
	return result, err
}

// Pending lists in-flight requests, oldest first.
func (b *Bridge) Pending() []Call {
	b.mu.Lock()
	calls := make([]Call, 0, len(b.pending))
	for _, c := range b.pending {
		calls = append(calls, c)
	}
	b.mu.Unlock()

	sort.Slice(calls, func(i, j int) bool { return calls[i].Started.Before(calls[j].Started) })
	return calls
}
