package dialectic

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically fails timed-out dialectic sessions. Grounded
// directly on pkg/cleanup/service.go's Start/run/Stop shape.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(engine *Engine, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{engine: engine, interval: interval, log: log}
}

func (s *Sweeper) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.engine.SweepTimeouts(ctx)
			if err != nil {
				s.log.Error("dialectic timeout sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("dialectic timeout sweep", "failed_count", n)
			}
		}
	}
}
