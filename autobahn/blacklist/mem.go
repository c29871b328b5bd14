package blacklist

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store, mostly for tests and fixtures.
type MemStore struct {
	mu           sync.RWMutex
	Channels     map[int64]ReasonCode
	Domains      map[string]ReasonCode
	Strings      map[string]ReasonCode
	Bios         map[string]ReasonCode
	Files        map[string]ReasonCode
	Hashes       map[string]ReasonCode
	LinkPreviews []LinkPreviewRule
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		Channels: make(map[int64]ReasonCode),
		Domains:  make(map[string]ReasonCode),
		Strings:  make(map[string]ReasonCode),
		Bios:     make(map[string]ReasonCode),
		Files:    make(map[string]ReasonCode),
		Hashes:   make(map[string]ReasonCode),
	}
}

func (s *MemStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{
		Channels:     make(map[int64]ReasonCode, len(s.Channels)),
		Domains:      make(map[string]ReasonCode, len(s.Domains)),
		Strings:      make(map[string]ReasonCode, len(s.Strings)),
		Bios:         make(map[string]ReasonCode, len(s.Bios)),
		Files:        make(map[string]ReasonCode, len(s.Files)),
		Hashes:       make(map[string]ReasonCode, len(s.Hashes)),
		LinkPreviews: append([]LinkPreviewRule{}, s.LinkPreviews...),
	}
	for k, v := range s.Channels {
		snap.Channels[k] = v
	}
	for k, v := range s.Domains {
		snap.Domains[k] = v
	}
	for k, v := range s.Strings {
		snap.Strings[k] = v
	}
	for k, v := range s.Bios {
		snap.Bios[k] = v
	}
	for k, v := range s.Files {
		snap.Files[k] = v
	}
	for k, v := range s.Hashes {
		snap.Hashes[k] = v
	}
	return snap, nil
}
