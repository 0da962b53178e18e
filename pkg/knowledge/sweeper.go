package knowledge

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically runs Cleanup — the supplemented knowledge.cleanup
// action (SPEC_FULL.md §3.7), adapted directly from pkg/cleanup/service.go's
// Start/run/Stop ticker shape.
type Sweeper struct {
	store     KnowledgeStore
	interval  time.Duration
	olderThan time.Duration
	log       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store KnowledgeStore, interval, olderThan time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, olderThan: olderThan, log: log}
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
			n, err := s.store.Cleanup(ctx, s.olderThan)
			if err != nil {
				s.log.Error("knowledge cleanup sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("knowledge cleanup sweep", "archived_count", n)
			}
		}
	}
}
