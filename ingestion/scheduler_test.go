package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doccat/server/broker"
)

func TestScheduler_ReEnqueuesStuckDocuments(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	doc, err := st.CreateDocument(context.Background(), "stuck.pdf", "key1", nil)
	require.NoError(t, err)
	st.stuckIDs = []int64{doc.ID}

	enqueuer := NewEnqueuer(st, br, time.Millisecond)
	sched := NewScheduler(st, br, enqueuer, time.Hour, time.Hour, 0)
	sched.tick(context.Background())

	depth, err := br.QueueDepth(context.Background(), broker.QueueDocuments)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestScheduler_NoStuckDocuments_NoJobsEnqueued(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)

	enqueuer := NewEnqueuer(st, br, time.Millisecond)
	sched := NewScheduler(st, br, enqueuer, time.Hour, time.Hour, 0)
	sched.tick(context.Background())

	depth, err := br.QueueDepth(context.Background(), broker.QueueDocuments)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestScheduler_StartStop_DoesNotBlock(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	enqueuer := NewEnqueuer(st, br, time.Millisecond)
	sched := NewScheduler(st, br, enqueuer, time.Millisecond, time.Hour, 0)

	sched.Start(context.Background())
	time.Sleep(5 * time.Millisecond)
	sched.Stop()
}
