package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/doccat/server/ai"
	"github.com/doccat/server/apperr"
	"github.com/doccat/server/blob"
	"github.com/doccat/server/broker"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
	"github.com/doccat/server/taxonomy"
)

// WorkerPool runs W workers, each independently reserving, processing, and
// ack/nack-ing jobs from broker.QueueDocuments (spec §4.6). Grounded on the
// teacher's goroutine-per-worker pattern, generalized from an in-process
// channel to a broker-backed lease queue so reservations survive worker
// crashes via the visibility timeout.
type WorkerPool struct {
	st                store.Store
	br                broker.Broker
	pipeline          *pipeline
	concurrency       int
	visibilityTimeout time.Duration
	pollInterval      time.Duration
	nackBackoffBase   time.Duration
	nackBackoffCap    time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// defaultNackBackoffBase/Cap are the spec §4.2 job-queue nack backoff
// bounds (base=5s, cap=300s), used when NewWorkerPool is given a zero
// duration for either.
const (
	defaultNackBackoffBase = 5 * time.Second
	defaultNackBackoffCap  = 300 * time.Second
)

func NewWorkerPool(
	st store.Store,
	br broker.Broker,
	bl blob.Store,
	gw ai.Gateway,
	tax taxonomy.Engine,
	preview Preview,
	cfg PipelineConfig,
	concurrency int,
	visibilityTimeout time.Duration,
	nackBackoffBase time.Duration,
	nackBackoffCap time.Duration,
) *WorkerPool {
	if nackBackoffBase <= 0 {
		nackBackoffBase = defaultNackBackoffBase
	}
	if nackBackoffCap <= 0 {
		nackBackoffCap = defaultNackBackoffCap
	}
	return &WorkerPool{
		st:                st,
		br:                br,
		pipeline:          newPipeline(st, bl, gw, tax, preview, cfg),
		concurrency:       concurrency,
		visibilityTimeout: visibilityTimeout,
		pollInterval:      250 * time.Millisecond,
		nackBackoffBase:   nackBackoffBase,
		nackBackoffCap:    nackBackoffCap,
	}
}

// Start launches the worker goroutines. Call Shutdown to stop them.
func (wp *WorkerPool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	wp.cancel = cancel
	for i := 0; i < wp.concurrency; i++ {
		wp.wg.Add(1)
		go wp.loop(ctx, i)
	}
}

// Shutdown cancels the worker loops and waits up to grace for in-flight
// jobs to finish (spec §4.6's graceful shutdown, G=30s).
func (wp *WorkerPool) Shutdown(grace time.Duration) {
	if wp.cancel != nil {
		wp.cancel()
	}
	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		log.Warnw("worker pool shutdown grace period elapsed with workers still running")
	}
}

func (wp *WorkerPool) loop(ctx context.Context, workerID int) {
	defer wp.wg.Done()
	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.tryReserveAndProcess(ctx, workerID)
		}
	}
}

func (wp *WorkerPool) tryReserveAndProcess(ctx context.Context, workerID int) {
	job, err := wp.br.Reserve(ctx, broker.QueueDocuments, wp.visibilityTimeout)
	if err != nil {
		log.Warnw("reserve failed", "worker", workerID, "error", err)
		return
	}
	if job == nil {
		return
	}

	payload, err := decodeJob(job.Payload)
	if err != nil {
		log.Errorw("undecodable job payload, acking to drop it", "worker", workerID, "error", err)
		_ = wp.br.Ack(ctx, job.ID)
		return
	}

	doc, err := wp.st.Get(ctx, payload.DocumentID)
	if err != nil {
		log.Errorw("job references missing document, acking to drop it", "worker", workerID, "document_id", payload.DocumentID, "error", err)
		_ = wp.br.Ack(ctx, job.ID)
		return
	}
	if doc.Status != models.DocumentStatusQueued && doc.Status != models.DocumentStatusProcessing {
		// already terminal or reset from under us; drop the stale job.
		_ = wp.br.Ack(ctx, job.ID)
		return
	}

	err = wp.pipeline.process(ctx, doc)
	if err == nil {
		_ = wp.br.Ack(ctx, job.ID)
		if err := wp.br.DeletePrefix(ctx, broker.KeyPrefixSearch); err != nil {
			log.Warnw("search cache invalidation failed", "error", err)
		}
		if err := wp.br.DeletePrefix(ctx, broker.KeyFacetsAll); err != nil {
			log.Warnw("facet cache invalidation failed", "error", err)
		}
		return
	}

	ae := apperr.As(err)
	// job.Attempts reflects the broker's own counter (incremented on every
	// prior Nack), which is authoritative over the payload's initial value.
	if !ae.Kind.IsRetriable() || job.Attempts+1 >= maxAttempts {
		msg := ae.Error()
		_ = wp.st.UpdateStatus(ctx, payload.DocumentID, models.DocumentStatusFailed, nil, &msg)
		_ = wp.br.Ack(ctx, job.ID)
		return
	}

	retryAfter := broker.BackoffSchedule(job.Attempts, wp.nackBackoffBase, wp.nackBackoffCap)
	if err := wp.br.Nack(ctx, job.ID, ae.Error(), retryAfter); err != nil {
		log.Errorw("nack failed", "worker", workerID, "job_id", job.ID, "error", err)
	}
}
