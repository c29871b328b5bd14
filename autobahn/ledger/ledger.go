// Package ledger persists ban records. The ledger is append-only: records are
// written at most logically-once per (user, reason) pair and queried by the
// enforcement workflow's idempotency guard.
package ledger

import (
	"context"
	"time"
)

// BanRecord is one enforcement outcome. Never mutated, only appended.
type BanRecord struct {
	ID       uint   `gorm:"primarykey"`
	UserID   int64  `gorm:"not null;uniqueIndex:idx_ban_user_reason"`
	Reason   string `gorm:"not null;uniqueIndex:idx_ban_user_reason"`
	BannedAt time.Time
}

func (BanRecord) TableName() string { return "banlist" }

type Ledger interface {
	// CountMatching returns how many records exist for the exact
	// (userID, reason) pair.
	CountMatching(ctx context.Context, userID int64, reason string) (int, error)
	// Append records a ban. The insert is conditional on the unique
	// (userID, reason) pair; the bool reports whether a new record was
	// written. Concurrent duplicate appends race down to one row.
	Append(ctx context.Context, rec BanRecord) (bool, error)
}
