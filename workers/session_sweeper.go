package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper removes sessions idle for longer than the given duration.
type Sweeper interface {
	Sweep(ctx context.Context, idleFor time.Duration) (int, error)
}

// SessionSweeper runs the sweeper on a cron schedule.
type SessionSweeper struct {
	cron    *cron.Cron
	sweeper Sweeper
	idleFor time.Duration
	onSwept func(n int)
}

// NewSessionSweeper schedules sweeps, e.g. "@every 10m" or a 5-field cron expression.
func NewSessionSweeper(sweeper Sweeper, schedule string, idleFor time.Duration, onSwept func(n int)) (*SessionSweeper, error) {
	if idleFor <= 0 {
		return nil, fmt.Errorf("session sweeper: idle duration must be positive, got %s", idleFor)
	}
	if onSwept == nil {
		onSwept = func(int) {}
	}

	s := &SessionSweeper{
		cron:    cron.New(),
		sweeper: sweeper,
		idleFor: idleFor,
		onSwept: onSwept,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.SweepOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("session sweeper: invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule and blocks until ctx is cancelled.
func (s *SessionSweeper) Start(ctx context.Context) error {
	s.cron.Start()
	logger.Info("Session sweeper started", zap.Duration("idle_for", s.idleFor))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	logger.Info("Session sweeper stopped")
	return ctx.Err()
}

func (s *SessionSweeper) SweepOnce(ctx context.Context) int {
	n, err := s.sweeper.Sweep(ctx, s.idleFor)
	if err != nil {
		logger.Error("Session sweep failed", zap.Error(err))
	}
	if n > 0 {
		logger.Info("Idle sessions removed", zap.Int("count", n))
		s.onSwept(n)
	}
	return n
}
