package store

// memory.go provides in-memory store implementations used by tests and by
// dev deployments that run without Postgres.

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements QrCodeStore, IpsFileStore and RecipientKeyStore with
// mutex-guarded maps. All operations are safe for concurrent use.
type MemoryStore struct {
	mu            sync.Mutex
	qrCodes       map[string]*QrCode  // keyed by manifest id
	ipsFiles      map[string]*IpsFile // keyed by id
	recipientKeys map[string]*RecipientKey
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		qrCodes:       make(map[string]*QrCode),
		ipsFiles:      make(map[string]*IpsFile),
		recipientKeys: make(map[string]*RecipientKey),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, qr *QrCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *qr
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.qrCodes[copied.ManifestID] = &copied
	return nil
}

func (s *MemoryStore) GetByManifestID(ctx context.Context, manifestID string) (*QrCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	qr, ok := s.qrCodes[manifestID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *qr
	return &copied, nil
}

// IpsFiles returns the IpsFileStore view of the memory store.
func (s *MemoryStore) IpsFiles() IpsFileStore { return (*memoryIpsFiles)(s) }

// RecipientKeys returns the RecipientKeyStore view of the memory store.
func (s *MemoryStore) RecipientKeys() RecipientKeyStore { return (*memoryRecipientKeys)(s) }

type memoryIpsFiles MemoryStore

func (s *memoryIpsFiles) Insert(ctx context.Context, f *IpsFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *f
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.ipsFiles[copied.ID] = &copied
	return nil
}

func (s *memoryIpsFiles) GetByID(ctx context.Context, id string) (*IpsFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.ipsFiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (s *memoryIpsFiles) GetByManifestID(ctx context.Context, manifestID string) (*IpsFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.ipsFiles {
		if f.ManifestID == manifestID {
			copied := *f
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryIpsFiles) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ipsFiles[id]; !ok {
		return ErrNotFound
	}
	delete(s.ipsFiles, id)
	return nil
}

func (s *memoryIpsFiles) MarkAccessed(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.ipsFiles[id]
	if !ok {
		return false, ErrNotFound
	}
	if f.Accessed {
		return false, nil
	}
	f.Accessed = true
	return true, nil
}

type memoryRecipientKeys MemoryStore

func (s *memoryRecipientKeys) Insert(ctx context.Context, rk *RecipientKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rk
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.recipientKeys[copied.ID] = &copied
	return nil
}

func (s *memoryRecipientKeys) ListByRecipient(ctx context.Context, recipient string) ([]*RecipientKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*RecipientKey
	for _, rk := range s.recipientKeys {
		if rk.Recipient == recipient {
			copied := *rk
			out = append(out, &copied)
		}
	}
	return out, nil
}
