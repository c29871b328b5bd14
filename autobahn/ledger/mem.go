package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemLedger is an in-memory Ledger for tests.
type MemLedger struct {
	mu      sync.Mutex
	records map[string]BanRecord
}

var _ Ledger = (*MemLedger)(nil)

func NewMemLedger() *MemLedger {
	return &MemLedger{records: make(map[string]BanRecord)}
}

func memKey(userID int64, reason string) string {
	return fmt.Sprintf("%d/%s", userID, reason)
}

func (l *MemLedger) CountMatching(ctx context.Context, userID int64, reason string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[memKey(userID, reason)]; ok {
		return 1, nil
	}
	return 0, nil
}

func (l *MemLedger) Append(ctx context.Context, rec BanRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := memKey(rec.UserID, rec.Reason)
	if _, ok := l.records[key]; ok {
		return false, nil
	}
	l.records[key] = rec
	return true, nil
}

// Len reports the total number of records, for test assertions.
func (l *MemLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
