package storage

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ad/script-agent-bot/internal/domain"
)

// PendingStore holds website-submitted verification requests keyed by
// user ID. The website process writes the same document, hence the
// flock in the file backend. At most one entry per user; a resubmit
// overwrites.
type PendingStore struct {
	mu     sync.Mutex
	store  DocumentStore
	logger domain.Logger
}

// NewPendingStore creates a pending-verification store.
func NewPendingStore(store DocumentStore, log domain.Logger) *PendingStore {
	return &PendingStore{store: store, logger: log}
}

func (s *PendingStore) load() (map[string]domain.PendingVerification, error) {
	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	pending := make(map[string]domain.PendingVerification)
	if len(data) == 0 {
		return pending, nil
	}
	if err := json.Unmarshal(data, &pending); err != nil {
		s.logger.Warn("pending document corrupted, resetting", "error", err)
		return make(map[string]domain.PendingVerification), nil
	}
	return pending, nil
}

func (s *PendingStore) save(pending map[string]domain.PendingVerification) error {
	data, err := json.MarshalIndent(pending, "", "    ")
	if err != nil {
		return err
	}
	return s.store.Save(data)
}

// Put records a verification request for the user, replacing any
// previous one.
func (s *PendingStore) Put(userID, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.load()
	if err != nil {
		return err
	}
	pending[userID] = domain.PendingVerification{
		Username:  username,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
	return s.save(pending)
}

// Get returns the live request for the user. A stale entry is purged
// on sight and reported as absent: expired handshakes are never
// trusted.
func (s *PendingStore) Get(userID string, now time.Time) (domain.PendingVerification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.load()
	if err != nil {
		return domain.PendingVerification{}, false, err
	}
	req, ok := pending[userID]
	if !ok {
		return domain.PendingVerification{}, false, nil
	}
	if req.Stale(now) {
		delete(pending, userID)
		if err := s.save(pending); err != nil {
			return domain.PendingVerification{}, false, err
		}
		s.logger.Info("purged stale verification request on access", "user_id", userID)
		return domain.PendingVerification{}, false, nil
	}
	return req, true, nil
}

// Delete removes the user's request, if any.
func (s *PendingStore) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := pending[userID]; !ok {
		return nil
	}
	delete(pending, userID)
	return s.save(pending)
}

// Sweep deletes every request older than the pending TTL and returns
// how many were removed.
func (s *PendingStore) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.load()
	if err != nil {
		return 0, err
	}

	removed := 0
	for userID, req := range pending {
		if req.Stale(now) {
			delete(pending, userID)
			removed++
			s.logger.Info("auto-cleaned stale verification request", "user_id", userID)
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save(pending)
}
