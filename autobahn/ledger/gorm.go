package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger stores ban records in a relational database. The unique index on
// (user_id, reason) plus ON CONFLICT DO NOTHING makes Append a conditional
// insert, closing the check-then-append race between concurrent workflows.
type GormLedger struct {
	db *gorm.DB
}

var _ Ledger = (*GormLedger)(nil)

func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&BanRecord{}); err != nil {
		return nil, fmt.Errorf("migrating ban ledger: %w", err)
	}
	return &GormLedger{db: db}, nil
}

func (l *GormLedger) CountMatching(ctx context.Context, userID int64, reason string) (int, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&BanRecord{}).
		Where("user_id = ? AND reason = ?", userID, reason).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (l *GormLedger) Append(ctx context.Context, rec BanRecord) (bool, error) {
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "reason"}},
			DoNothing: true,
		}).
		Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
