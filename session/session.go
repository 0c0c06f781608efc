// Package session implements the Session & Authentication Core: an
// encrypted, TTL-managed session envelope stored in the Cache/Broker, with
// an in-memory fallback when the broker is unreachable (spec §4.8).
// Grounded on the Cache/Broker's own ping-test fallback pattern
// (broker/redis_broker.go) for the degrade-to-memory shape, and on
// golang.org/x/crypto/chacha20poly1305 (a teacher-indirect dependency
// promoted to direct) for the authenticated cipher.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/doccat/server/broker"
	"github.com/doccat/server/logger"
)

var log = logger.New("session")

var (
	ErrNotFound = errors.New("session: not found or expired")
)

// Payload is the plaintext carried inside the envelope (spec §3, Session).
type Payload struct {
	UserID     *string                `json:"user_id,omitempty"`
	Auth       bool                   `json:"auth"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Health is session.health()'s result (spec §4.8).
type Health struct {
	BackendUp    bool `json:"backend_up"`
	EncryptionOK bool `json:"encryption_ok"`
	Fallback     bool `json:"fallback"`
}

// Manager is the spec §4.8 contract.
type Manager interface {
	Create(ctx context.Context, payload Payload) (string, error)
	Load(ctx context.Context, sessionID string) (*Payload, error)
	Update(ctx context.Context, sessionID string, payload Payload, extend bool) error
	Destroy(ctx context.Context, sessionID string) error
	Health(ctx context.Context) Health
	// VerifyPassword performs a constant-time comparison against the
	// configured shared password.
	VerifyPassword(candidate string) bool
	// InFallback reports whether the broker was unreachable at last use;
	// the HTTP Surface uses this to emit X-Session-Warning.
	InFallback() bool
}

type envelopeRecord struct {
	Ciphertext     []byte    `json:"ciphertext"`
	Nonce          []byte    `json:"nonce"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	LastWrittenAt  time.Time `json:"last_written_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

type manager struct {
	br       broker.Broker
	aead     interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
	ttl              time.Duration
	lazyRewriteAfter time.Duration
	appPassword      string

	mu       sync.RWMutex
	memStore map[string]envelopeRecord
	fallback bool
}

// New derives a 256-bit chacha20poly1305 key from SHA-256(secret), per
// spec §4.8's "key derived by SHA-256 of a configured secret".
func New(br broker.Broker, secret, appPassword string, ttl, lazyRewriteAfter time.Duration) (Manager, error) {
	key := sha256.Sum256([]byte(secret))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return &manager{
		br:               br,
		aead:             aead,
		ttl:              ttl,
		lazyRewriteAfter: lazyRewriteAfter,
		appPassword:      appPassword,
		memStore:         make(map[string]envelopeRecord),
	}, nil
}

func newSessionID() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func (m *manager) seal(payload Payload) (envelopeRecord, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return envelopeRecord{}, err
	}
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return envelopeRecord{}, err
	}
	ciphertext := m.aead.Seal(nil, nonce, plaintext, nil)
	now := time.Now()
	return envelopeRecord{
		Ciphertext:     ciphertext,
		Nonce:          nonce,
		LastAccessedAt: now,
		LastWrittenAt:  now,
		ExpiresAt:      now.Add(m.ttl),
	}, nil
}

func (m *manager) open(rec envelopeRecord) (*Payload, error) {
	plaintext, err := m.aead.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		// decryption failure is treated as session_missing, logged at
		// WARN, never surfaced as a distinct error kind (spec §4.8).
		log.Warnw("session envelope failed to decrypt, treating as missing", "error", err)
		return nil, ErrNotFound
	}
	var p Payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		log.Warnw("session payload failed to unmarshal, treating as missing", "error", err)
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *manager) useBroker(ctx context.Context) bool {
	h := m.br.Health(ctx)
	m.mu.Lock()
	m.fallback = !h.OK
	m.mu.Unlock()
	return h.OK
}

func (m *manager) Create(ctx context.Context, payload Payload) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	rec, err := m.seal(payload)
	if err != nil {
		return "", err
	}
	if m.useBroker(ctx) {
		data, err := json.Marshal(rec)
		if err != nil {
			return "", err
		}
		if err := m.br.Set(ctx, broker.SessionKey(id), data, m.ttl); err != nil {
			return "", err
		}
		return id, nil
	}
	m.mu.Lock()
	m.memStore[id] = rec
	m.mu.Unlock()
	return id, nil
}

func (m *manager) fetch(ctx context.Context, sessionID string) (envelopeRecord, bool, error) {
	if m.useBroker(ctx) {
		data, ok, err := m.br.Get(ctx, broker.SessionKey(sessionID))
		if err != nil || !ok {
			return envelopeRecord{}, false, err
		}
		var rec envelopeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return envelopeRecord{}, false, nil
		}
		return rec, true, nil
	}
	m.mu.RLock()
	rec, ok := m.memStore[sessionID]
	m.mu.RUnlock()
	return rec, ok, nil
}

func (m *manager) persist(ctx context.Context, sessionID string, rec envelopeRecord) error {
	if m.useBroker(ctx) {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		ttl := time.Until(rec.ExpiresAt)
		if ttl <= 0 {
			ttl = m.ttl
		}
		return m.br.Set(ctx, broker.SessionKey(sessionID), data, ttl)
	}
	m.mu.Lock()
	m.memStore[sessionID] = rec
	m.mu.Unlock()
	return nil
}

// Load validates TTL, refreshes last_accessed_at, and lazily rewrites the
// envelope only if more than lazyRewriteAfter has passed since the last
// write (spec §4.8), to avoid a write on every read.
func (m *manager) Load(ctx context.Context, sessionID string) (*Payload, error) {
	rec, ok, err := m.fetch(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(rec.ExpiresAt) {
		_ = m.Destroy(ctx, sessionID)
		return nil, ErrNotFound
	}

	payload, err := m.open(rec)
	if err != nil {
		return nil, err
	}

	rec.LastAccessedAt = time.Now()
	if time.Since(rec.LastWrittenAt) > m.lazyRewriteAfter {
		rec.LastWrittenAt = rec.LastAccessedAt
		if err := m.persist(ctx, sessionID, rec); err != nil {
			log.Warnw("lazy session rewrite failed", "error", err)
		}
	}
	return payload, nil
}

// Update preserves TTL unless extend is true (spec §4.8).
func (m *manager) Update(ctx context.Context, sessionID string, payload Payload, extend bool) error {
	existing, ok, err := m.fetch(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	rec, err := m.seal(payload)
	if err != nil {
		return err
	}
	if extend {
		rec.ExpiresAt = time.Now().Add(m.ttl)
	} else {
		rec.ExpiresAt = existing.ExpiresAt
	}
	return m.persist(ctx, sessionID, rec)
}

func (m *manager) Destroy(ctx context.Context, sessionID string) error {
	if m.useBroker(ctx) {
		return m.br.DeletePrefix(ctx, broker.SessionKey(sessionID))
	}
	m.mu.Lock()
	delete(m.memStore, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *manager) Health(ctx context.Context) Health {
	up := m.useBroker(ctx)
	return Health{BackendUp: up, EncryptionOK: true, Fallback: !up}
}

func (m *manager) VerifyPassword(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(m.appPassword)) == 1
}

func (m *manager) InFallback() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallback
}
