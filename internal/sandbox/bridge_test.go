package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generatorFunc func(ctx context.Context, script *Script, payload interface{}) (*Result, error)

func (f generatorFunc) Generate(ctx context.Context, script *Script, payload interface{}) (*Result, error) {
	return f(ctx, script, payload)
}

func TestBridgeAssignsRequestIDs(t *testing.T) {
	var bridge *Bridge
	var seenPending []Call
	bridge = NewBridge(generatorFunc(func(context.Context, *Script, interface{}) (*Result, error) {
		seenPending = bridge.Pending()
		return &Result{Value: "ok"}, nil
	}))

	first, err := bridge.Generate(context.Background(), nil, nil)
	require.NoError(t, err)
	second, err := bridge.Generate(context.Background(), nil, nil)
	require.NoError(t, err)

	_, err = uuid.Parse(first.RequestID)
	assert.NoError(t, err)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	require.Len(t, seenPending, 1)
	assert.Equal(t, second.RequestID, seenPending[0].ID)
	assert.Empty(t, bridge.Pending())
}

func TestBridgeKeepsIDOnFailure(t *testing.T) {
	boom := errors.New("boom")
	bridge := NewBridge(generatorFunc(func(context.Context, *Script, interface{}) (*Result, error) {
		return nil, boom
	}))

	result, err := bridge.Generate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, boom, result.Error)
}

func TestBridgeOverPool(t *testing.T) {
	config, _ := testConfig()
	pool, err := NewPool(config, 1)
	require.NoError(t, err)
	defer pool.Close()

	bridge := NewBridge(pool)
	result, err := bridge.Generate(context.Background(), &Script{Source: `globalThis.generateData = (p) => p.join("-");`}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "a-b", result.Value)
	assert.NotEmpty(t, result.RequestID)

	_, err = bridge.Generate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestBridgeUsesContextRequestID(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{}, 2)
	bridge := NewBridge(generatorFunc(func(ctx context.Context, _ *Script, _ interface{}) (*Result, error) {
		entered <- struct{}{}
		<-block
		return &Result{}, nil
	}))

	ctx := WithRequestID(context.Background(), "req-1")
	ids := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			result, _ := bridge.Generate(ctx, nil, nil)
			ids <- result.RequestID
		}()
	}
	<-entered
	<-entered
	assert.Len(t, bridge.Pending(), 2)
	close(block)

	got := []string{<-ids, <-ids}
	assert.Contains(t, got, "req-1")
	assert.NotEqual(t, got[0], got[1])
}
