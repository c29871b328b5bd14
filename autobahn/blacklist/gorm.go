package blacklist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Row models. Table names are pinned: administrative tooling reads and writes
// the same database.

type ChannelEntry struct {
	ChannelID int64 `gorm:"primaryKey;autoIncrement:false"`
	Reason    int64
}

func (ChannelEntry) TableName() string { return "ab_channel_blacklist" }

type DomainEntry struct {
	Domain string `gorm:"primaryKey"`
	Reason int64
}

func (DomainEntry) TableName() string { return "ab_domain_blacklist" }

type StringEntry struct {
	Value  string `gorm:"primaryKey"`
	Reason int64
}

func (StringEntry) TableName() string { return "ab_string_blacklist" }

type BioEntry struct {
	Value  string `gorm:"primaryKey"`
	Reason int64
}

func (BioEntry) TableName() string { return "ab_bio_blacklist" }

type FileEntry struct {
	Hash   string `gorm:"primaryKey"`
	Reason int64
}

func (FileEntry) TableName() string { return "ab_file_blacklist" }

type HashEntry struct {
	Hash   string `gorm:"primaryKey"`
	Reason int64
}

func (HashEntry) TableName() string { return "ab_mhash_blacklist" }

// LinkPreviewEntry carries a raw JSON rule payload of the shape
// {"domains": ["example.com"] | null, "string": "substring"}.
type LinkPreviewEntry struct {
	ID     uint   `gorm:"primarykey"`
	Rule   string `gorm:"not null"`
	Reason int64
}

func (LinkPreviewEntry) TableName() string { return "ab_linkpreview_blacklist" }

// GormStore reads blacklist tables from a relational database.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&ChannelEntry{},
		&DomainEntry{},
		&StringEntry{},
		&BioEntry{},
		&FileEntry{},
		&HashEntry{},
		&LinkPreviewEntry{},
	); err != nil {
		return nil, fmt.Errorf("migrating blacklist tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

type rawPreviewRule struct {
	Domains []string `json:"domains"`
	String  string   `json:"string"`
}

// Rule payloads are parsed once here, and malformed rows are rejected eagerly,
// rather than failing deep inside the matcher pipeline.
func parsePreviewRule(row LinkPreviewEntry) (LinkPreviewRule, error) {
	var raw rawPreviewRule
	if err := json.Unmarshal([]byte(row.Rule), &raw); err != nil {
		return LinkPreviewRule{}, fmt.Errorf("link-preview rule %d: %w", row.ID, err)
	}
	if raw.String == "" {
		return LinkPreviewRule{}, fmt.Errorf("link-preview rule %d: empty substring", row.ID)
	}
	rule := LinkPreviewRule{
		Substring: strings.ToLower(raw.String),
		Reason:    ReasonCode(row.Reason),
	}
	for _, d := range raw.Domains {
		rule.Domains = append(rule.Domains, strings.ToLower(d))
	}
	return rule, nil
}

func (s *GormStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Channels: make(map[int64]ReasonCode),
		Domains:  make(map[string]ReasonCode),
		Strings:  make(map[string]ReasonCode),
		Bios:     make(map[string]ReasonCode),
		Files:    make(map[string]ReasonCode),
		Hashes:   make(map[string]ReasonCode),
	}

	// one transaction so all tables come from a single consistent view
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var channels []ChannelEntry
		if err := tx.Find(&channels).Error; err != nil {
			return err
		}
		for _, row := range channels {
			snap.Channels[row.ChannelID] = ReasonCode(row.Reason)
		}

		var domains []DomainEntry
		if err := tx.Find(&domains).Error; err != nil {
			return err
		}
		for _, row := range domains {
			snap.Domains[strings.ToLower(row.Domain)] = ReasonCode(row.Reason)
		}

		var strs []StringEntry
		if err := tx.Find(&strs).Error; err != nil {
			return err
		}
		for _, row := range strs {
			snap.Strings[row.Value] = ReasonCode(row.Reason)
		}

		var bios []BioEntry
		if err := tx.Find(&bios).Error; err != nil {
			return err
		}
		for _, row := range bios {
			snap.Bios[row.Value] = ReasonCode(row.Reason)
		}

		var files []FileEntry
		if err := tx.Find(&files).Error; err != nil {
			return err
		}
		for _, row := range files {
			snap.Files[strings.ToLower(row.Hash)] = ReasonCode(row.Reason)
		}

		var hashes []HashEntry
		if err := tx.Find(&hashes).Error; err != nil {
			return err
		}
		for _, row := range hashes {
			snap.Hashes[strings.ToLower(row.Hash)] = ReasonCode(row.Reason)
		}

		var previews []LinkPreviewEntry
		if err := tx.Find(&previews).Error; err != nil {
			return err
		}
		for _, row := range previews {
			rule, err := parsePreviewRule(row)
			if err != nil {
				return err
			}
			snap.LinkPreviews = append(snap.LinkPreviews, rule)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading blacklist snapshot: %w", err)
	}
	return snap, nil
}

// Administrative mutations. The pipeline never calls these.

func (s *GormStore) AddChannel(ctx context.Context, channelID int64, reason ReasonCode) error {
	row := ChannelEntry{ChannelID: channelID, Reason: int64(reason)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) AddDomain(ctx context.Context, domain string, reason ReasonCode) error {
	row := DomainEntry{Domain: strings.ToLower(domain), Reason: int64(reason)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) AddString(ctx context.Context, value string, reason ReasonCode) error {
	row := StringEntry{Value: value, Reason: int64(reason)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) AddBio(ctx context.Context, value string, reason ReasonCode) error {
	row := BioEntry{Value: value, Reason: int64(reason)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) AddFile(ctx context.Context, hash string, reason ReasonCode) error {
	row := FileEntry{Hash: strings.ToLower(hash), Reason: int64(reason)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) AddHash(ctx context.Context, hash string, reason ReasonCode) error {
	row := HashEntry{Hash: strings.ToLower(hash), Reason: int64(reason)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *GormStore) AddLinkPreview(ctx context.Context, domains []string, substring string, reason ReasonCode) error {
	raw, err := json.Marshal(rawPreviewRule{Domains: domains, String: substring})
	if err != nil {
		return err
	}
	row := LinkPreviewEntry{Rule: string(raw), Reason: int64(reason)}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) RemoveChannel(ctx context.Context, channelID int64) error {
	return s.db.WithContext(ctx).Delete(&ChannelEntry{ChannelID: channelID}).Error
}

func (s *GormStore) RemoveDomain(ctx context.Context, domain string) error {
	return s.db.WithContext(ctx).Delete(&DomainEntry{Domain: strings.ToLower(domain)}).Error
}

func (s *GormStore) RemoveString(ctx context.Context, value string) error {
	return s.db.WithContext(ctx).Delete(&StringEntry{Value: value}).Error
}

func (s *GormStore) RemoveBio(ctx context.Context, value string) error {
	return s.db.WithContext(ctx).Delete(&BioEntry{Value: value}).Error
}

func (s *GormStore) RemoveFile(ctx context.Context, hash string) error {
	return s.db.WithContext(ctx).Delete(&FileEntry{Hash: strings.ToLower(hash)}).Error
}

func (s *GormStore) RemoveHash(ctx context.Context, hash string) error {
	return s.db.WithContext(ctx).Delete(&HashEntry{Hash: strings.ToLower(hash)}).Error
}
