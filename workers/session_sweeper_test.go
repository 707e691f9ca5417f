package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweeper struct {
	mu        sync.Mutex
	callCount int
	idleFor   time.Duration
	removed   int
	err       error
}

func (m *mockSweeper) Sweep(ctx context.Context, idleFor time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.idleFor = idleFor
	return m.removed, m.err
}

func (m *mockSweeper) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func TestSessionSweeper_SweepOnce(t *testing.T) {
	sweeper := &mockSweeper{removed: 3}
	var swept int

	s, err := NewSessionSweeper(sweeper, "@every 10m", 30*time.Minute, func(n int) { swept += n })
	require.NoError(t, err)

	assert.Equal(t, 3, s.SweepOnce(context.Background()))
	assert.Equal(t, 30*time.Minute, sweeper.idleFor)
	assert.Equal(t, 3, swept)
}

func TestSessionSweeper_SweepErrorIsLogged(t *testing.T) {
	sweeper := &mockSweeper{err: errors.New("redis down")}
	s, err := NewSessionSweeper(sweeper, "@every 10m", time.Minute, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, s.SweepOnce(context.Background()))
}

func TestSessionSweeper_Validation(t *testing.T) {
	_, err := NewSessionSweeper(&mockSweeper{}, "not-a-schedule", time.Minute, nil)
	assert.Error(t, err)

	_, err = NewSessionSweeper(&mockSweeper{}, "@every 1m", 0, nil)
	assert.Error(t, err)
}

func TestSessionSweeper_RunsOnSchedule(t *testing.T) {
	sweeper := &mockSweeper{}
	s, err := NewSessionSweeper(sweeper, "@every 1s", time.Minute, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return sweeper.calls() > 0 }, 3*time.Second, 50*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
