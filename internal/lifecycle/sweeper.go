package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepRunner runs one system sweep.
type SweepRunner interface {
	SweepScheduled(ctx context.Context) (*SweepResult, error)
}

// Sweeper runs the status sweep on a fixed interval.
type Sweeper struct {
	runner   SweepRunner
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper. It does nothing until Start is called.
func NewSweeper(runner SweepRunner, interval time.Duration) *Sweeper {
	return &Sweeper{
		runner:   runner,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("starting lifecycle sweeper", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("lifecycle sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.runner.SweepScheduled(ctx); err != nil {
				slog.Error("scheduled sweep failed", "error", err)
			}
		}
	}
}
