// Package ingestion moves each Document through its lifecycle: enqueue,
// worker-pool processing (fetch -> extract -> analyze -> embed -> preview),
// retry/backoff, and periodic stuck-job sweeping (spec §4.6). Grounded on
// the teacher's worker-pool shape in services/impl (goroutine-per-worker
// over a channel) generalized to a broker-backed lease/ack/nack queue.
package ingestion

import "encoding/json"

// jobPayload is the wire shape enqueued onto broker.QueueDocuments.
type jobPayload struct {
	DocumentID int64 `json:"doc_id"`
	Attempts   int   `json:"attempts"`
}

func encodeJob(documentID int64, attempts int) ([]byte, error) {
	return json.Marshal(jobPayload{DocumentID: documentID, Attempts: attempts})
}

func decodeJob(data []byte) (jobPayload, error) {
	var p jobPayload
	err := json.Unmarshal(data, &p)
	return p, err
}

const maxAttempts = 5
