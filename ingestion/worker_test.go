package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doccat/server/apperr"
	"github.com/doccat/server/broker"
	"github.com/doccat/server/models"
)

func setupWorkerBroker(t *testing.T) broker.Broker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return broker.NewRedisBroker(client)
}

func newTestWorkerPool(st *fakeStore, br broker.Broker, bl *fakeBlob, gw *fakeGateway, tax *fakeTax) *WorkerPool {
	cfg := PipelineConfig{VectorDim: 3, RequireEmbedding: false, AnalysisPrompt: "prompt"}
	return NewWorkerPool(st, br, bl, gw, tax, NoopPreview{}, cfg, 1, 5*time.Second, 10*time.Millisecond, 50*time.Millisecond)
}

func TestWorkerPool_ProcessesEnqueuedJob(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	bl := &fakeBlob{contents: map[string][]byte{"key1": []byte("bytes")}}
	doc, err := st.CreateDocument(context.Background(), "a.pdf", "key1", nil)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(context.Background(), doc.ID, models.DocumentStatusQueued, nil, nil))

	payload, err := encodeJob(doc.ID, 0)
	require.NoError(t, err)
	_, err = br.Enqueue(context.Background(), broker.QueueDocuments, payload, time.Now())
	require.NoError(t, err)

	wp := newTestWorkerPool(st, br, bl, &fakeGateway{}, &fakeTax{})
	wp.tryReserveAndProcess(context.Background(), 0)

	assert.Equal(t, models.DocumentStatusCompleted, st.docs[doc.ID].Status)
}

func TestWorkerPool_NoJobAvailable_NoOp(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	wp := newTestWorkerPool(st, br, &fakeBlob{contents: map[string][]byte{}}, &fakeGateway{}, &fakeTax{})
	wp.tryReserveAndProcess(context.Background(), 0) // must not panic with an empty queue
}

func TestWorkerPool_UndecodableJob_IsAckedAndDropped(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	_, err := br.Enqueue(context.Background(), broker.QueueDocuments, []byte("not json"), time.Now())
	require.NoError(t, err)

	wp := newTestWorkerPool(st, br, &fakeBlob{contents: map[string][]byte{}}, &fakeGateway{}, &fakeTax{})
	wp.tryReserveAndProcess(context.Background(), 0)

	depth, err := br.QueueDepth(context.Background(), broker.QueueDocuments)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestWorkerPool_MissingDocument_IsAckedAndDropped(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	payload, err := encodeJob(999, 0)
	require.NoError(t, err)
	_, err = br.Enqueue(context.Background(), broker.QueueDocuments, payload, time.Now())
	require.NoError(t, err)

	wp := newTestWorkerPool(st, br, &fakeBlob{contents: map[string][]byte{}}, &fakeGateway{}, &fakeTax{})
	wp.tryReserveAndProcess(context.Background(), 0)

	depth, err := br.QueueDepth(context.Background(), broker.QueueDocuments)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestWorkerPool_NonRetriableFailure_FailsDocumentAndAcks(t *testing.T) {
	st := newFakeStore()
	br := setupWorkerBroker(t)
	bl := &fakeBlob{contents: map[string][]byte{}} // blob missing -> terminal failure inside pipeline
	doc, err := st.CreateDocument(context.Background(), "a.pdf", "missing-key", nil)
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(context.Background(), doc.ID, models.DocumentStatusQueued, nil, nil))

	payload, err := encodeJob(doc.ID, 0)
	require.NoError(t, err)
	_, err = br.Enqueue(context.Background(), broker.QueueDocuments, payload, time.Now())
	require.NoError(t, err)

	wp := newTestWorkerPool(st, br, bl, &fakeGateway{}, &fakeTax{})
	wp.tryReserveAndProcess(context.Background(), 0)

	assert.Equal(t, models.DocumentStatusFailed, st.docs[doc.ID].Status)
	depth, err := br.QueueDepth(context.Background(), broker.QueueDocuments)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestWorkerPool_PlainError_ClassifiedAsInternal(t *testing.T) {
	// regression guard: apperr.As on a plain Go error must default to
	// KindInternal (non-retriable), not crash the worker loop.
	ae := apperr.As(assertErr{})
	assert.Equal(t, apperr.KindInternal, ae.Kind)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
