package idempotency

import (
	"context"
	"net/http"
	"sync"
	"time"
)

type memoryClaim struct {
	fingerprint string
	completed   bool
	response    StoredResponse
	expiresAt   time.Time
}

// MemoryStore keeps claims in process memory, for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	claims map[string]memoryClaim
}

// NewMemoryStore constructs an empty in-memory claim store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: make(map[string]memoryClaim)}
}

// Begin implements the Store interface.
func (s *MemoryStore) Begin(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	claim, ok := s.claims[id]
	if !ok || (!claim.expiresAt.IsZero() && !now.Before(claim.expiresAt)) {
		s.claims[id] = memoryClaim{
			fingerprint: fingerprint,
			expiresAt:   now.Add(ttl),
		}
		return Claim{Outcome: OutcomeNew}, nil
	}

	if claim.fingerprint != fingerprint {
		return Claim{}, ErrFingerprintMismatch
	}
	if claim.completed {
		return Claim{Outcome: OutcomeReplay, Replay: claim.response}, nil
	}
	return Claim{Outcome: OutcomeInFlight}, nil
}

// Complete implements the Store interface.
func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp StoredResponse, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := docID(key)
	claim, ok := s.claims[id]
	if ok && claim.fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}

	stored := StoredResponse{Status: resp.Status, Headers: http.Header{}}
	for name, values := range storableHeaders(resp.Headers) {
		stored.Headers[name] = append([]string(nil), values...)
	}
	if len(resp.Body) > 0 {
		stored.Body = append([]byte(nil), resp.Body...)
	}

	s.claims[id] = memoryClaim{
		fingerprint: fingerprint,
		completed:   true,
		response:    stored,
		expiresAt:   now.Add(ttl),
	}
	return nil
}

// Abandon implements the Store interface.
func (s *MemoryStore) Abandon(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, docID(key))
	return nil
}

// CleanupExpired implements the Store interface.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.claims) {
		limit = len(s.claims)
	}

	removed := 0
	for id, claim := range s.claims {
		if claim.expiresAt.IsZero() || now.Before(claim.expiresAt) {
			continue
		}
		delete(s.claims, id)
		removed++
		if removed >= limit {
			break
		}
	}
	return removed, nil
}
