// Package broker implements short-lived keyed storage plus the job queue
// (spec §4.2). Grounded on the teacher's services/impl/cache_service_impl.go
// (Redis-backed with in-memory fallback, SHA-256 cache keys, SCAN-based
// prefix invalidation) for the KV half, and services/memory/short_term.go
// (direct *redis.Client usage with a manual key-prefix scheme) for the
// queue half.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrNotFound = errors.New("broker: job not found")

// Job is one unit of work reserved from a queue (spec §4.2).
type Job struct {
	ID       string
	Queue    string
	Payload  []byte
	Attempts int
}

// Health is the spec §4.2 health() result.
type Health struct {
	OK        bool          `json:"ok"`
	LatencyMS int64         `json:"latency_ms"`
}

// Broker is the spec §4.2 contract.
type Broker interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error

	Enqueue(ctx context.Context, queue string, payload []byte, eta time.Time) (string, error)
	Reserve(ctx context.Context, queue string, visibilityTimeout time.Duration) (*Job, error)
	Ack(ctx context.Context, jobID string) error
	Nack(ctx context.Context, jobID, reason string, retryAfter time.Duration) error

	QueueDepth(ctx context.Context, queue string) (int64, error)
	Health(ctx context.Context) Health
}

// Keyspace conventions from spec §4.2.
const (
	KeyPrefixSearch  = "search:"
	KeyFacetsAll     = "facets:enhanced:all"
	KeyPrefixSession = "session:"
	QueueDocuments   = "job:documents:process"
)

func SearchKey(hash string) string { return KeyPrefixSearch + hash }
func SessionKey(id string) string  { return KeyPrefixSession + id }

// BackoffSchedule computes the spec §4.2 nack backoff: min(2^attempts *
// base, cap). Built on cenkalti/backoff's ExponentialBackOff with jitter
// disabled so the sequence is exactly deterministic, matching spec's
// formula rather than the library's own randomized default.
func BackoffSchedule(attempts int, base, cap time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = cap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	d := base
	for i := 0; i <= attempts; i++ {
		next := b.NextBackOff()
		if next == backoff.Stop {
			return cap
		}
		d = next
	}
	if d > cap {
		return cap
	}
	return d
}
