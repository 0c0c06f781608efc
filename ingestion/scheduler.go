package ingestion

import (
	"context"
	"time"

	"github.com/doccat/server/broker"
	"github.com/doccat/server/store"
)

// Scheduler runs periodically (every T, spec §4.6): re-enqueues stuck
// documents and logs queue-depth metrics. It does not touch the facet
// cache; facet entries expire only through their cache TTL. Grounded on the teacher's periodic-sweep goroutine shape used
// by its memory consolidation services.
type Scheduler struct {
	st               store.Store
	br               broker.Broker
	enqueuer         *Enqueuer
	interval         time.Duration
	stuckAfter       time.Duration
	queueWatermark   int

	cancel context.CancelFunc
}

func NewScheduler(st store.Store, br broker.Broker, enqueuer *Enqueuer, interval, stuckAfter time.Duration, queueWatermark int) *Scheduler {
	return &Scheduler{st: st, br: br, enqueuer: enqueuer, interval: interval, stuckAfter: stuckAfter, queueWatermark: queueWatermark}
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.loop(ctx)
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	stuck, err := s.st.FindStuckDocuments(ctx, int(s.stuckAfter.Seconds()))
	if err != nil {
		log.Warnw("stuck-document sweep failed", "error", err)
	} else {
		for _, d := range stuck {
			if err := s.enqueuer.ReEnqueue(ctx, d.ID, 0); err != nil {
				log.Warnw("failed to re-enqueue stuck document", "document_id", d.ID, "error", err)
			}
		}
		if len(stuck) > 0 {
			log.Infow("re-enqueued stuck documents", "count", len(stuck))
		}
	}

	depth, err := s.br.QueueDepth(ctx, broker.QueueDocuments)
	if err != nil {
		log.Warnw("queue depth check failed", "error", err)
	} else if s.queueWatermark > 0 && int(depth) > s.queueWatermark {
		log.Warnw("queue depth above watermark", "depth", depth, "watermark", s.queueWatermark)
	} else {
		log.Debugw("scheduler tick", "queue_depth", depth)
	}
}
