package ingestion

import (
	"context"
	"time"

	"github.com/doccat/server/broker"
	"github.com/doccat/server/logger"
	"github.com/doccat/server/models"
	"github.com/doccat/server/store"
)

var log = logger.New("ingestion")

// Enqueuer creates Documents on upload and enqueues their processing jobs,
// staggering successive jobs in the same upload batch to spread AI Gateway
// load (spec §4.6).
type Enqueuer struct {
	st     store.Store
	br     broker.Broker
	stagger time.Duration
}

func NewEnqueuer(st store.Store, br broker.Broker, stagger time.Duration) *Enqueuer {
	return &Enqueuer{st: st, br: br, stagger: stagger}
}

// EnqueueUpload creates the Document row, transitions it to QUEUED, and
// enqueues its job with an eta offset by batchIndex*stagger so a multi-file
// upload doesn't burst the AI Gateway all at once.
func (e *Enqueuer) EnqueueUpload(ctx context.Context, filename, blobKey string, size *int64, batchIndex int) (*models.Document, error) {
	doc, err := e.st.CreateDocument(ctx, filename, blobKey, size)
	if err != nil {
		return nil, err
	}

	if err := e.st.UpdateStatus(ctx, doc.ID, models.DocumentStatusQueued, intPtr(0), nil); err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatusQueued

	payload, err := encodeJob(doc.ID, 0)
	if err != nil {
		return nil, err
	}
	eta := time.Now().Add(time.Duration(batchIndex) * e.stagger)
	if _, err := e.br.Enqueue(ctx, broker.QueueDocuments, payload, eta); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReEnqueue is used by reset_for_reprocessing and the stuck-job sweeper:
// it enqueues a job for an already-existing document without creating a
// new row.
func (e *Enqueuer) ReEnqueue(ctx context.Context, documentID int64, attempts int) error {
	payload, err := encodeJob(documentID, attempts)
	if err != nil {
		return err
	}
	_, err = e.br.Enqueue(ctx, broker.QueueDocuments, payload, time.Now())
	return err
}

func intPtr(v int) *int { return &v }
