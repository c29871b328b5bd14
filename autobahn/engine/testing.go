package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/ledger"
	"github.com/kantek-project/polizei/autobahn/platform"
)

// Recording fakes for the platform collaborators. Intentionally exported, for
// use in other packages' tests.

type FakeResolver struct {
	// identifier -> entity
	Entities map[string]*platform.Entity
	// raw url -> canonical domain override
	Domains map[string]string
	// raw url -> literal host form override
	Hosts map[string]string
}

var _ platform.EntityResolver = (*FakeResolver)(nil)

func NewFakeResolver() *FakeResolver {
	return &FakeResolver{
		Entities: make(map[string]*platform.Entity),
		Domains:  make(map[string]string),
		Hosts:    make(map[string]string),
	}
}

func (r *FakeResolver) ResolveURL(ctx context.Context, raw string) (string, error) {
	if d, ok := r.Domains[raw]; ok {
		return d, nil
	}
	host := platform.Netloc(raw)
	if host == "" {
		return "", fmt.Errorf("%w: %q", platform.ErrNotFound, raw)
	}
	return strings.TrimPrefix(host, "www."), nil
}

func (r *FakeResolver) ResolveURLHost(ctx context.Context, raw string) (string, error) {
	if h, ok := r.Hosts[raw]; ok {
		return h, nil
	}
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "https://")
	return strings.TrimPrefix(raw, "www."), nil
}

func (r *FakeResolver) ResolveEntity(ctx context.Context, identifier string) (*platform.Entity, error) {
	if ent, ok := r.Entities[identifier]; ok {
		return ent, nil
	}
	return nil, platform.ErrNotFound
}

type FakeMedia struct {
	Blobs map[platform.MediaRef][]byte
}

var _ platform.Media = (*FakeMedia)(nil)

func NewFakeMedia() *FakeMedia {
	return &FakeMedia{Blobs: make(map[platform.MediaRef][]byte)}
}

func (m *FakeMedia) Download(ctx context.Context, ref platform.MediaRef) ([]byte, error) {
	if data, ok := m.Blobs[ref]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%w: media %s", platform.ErrNotFound, ref)
}

type SentText struct {
	ChatID int64
	Text   string
}

type GlobalBan struct {
	UserID int64
	Reason string
}

// FakeActions records every moderation action, and fails any step named in
// Errs.
type FakeActions struct {
	mu sync.Mutex

	Errs map[string]error

	Deleted      []int64
	LocalBans    []int64
	Sent         []SentText
	GlobalBans   []GlobalBan
	Purged       []int64
	RecentCounts map[int64]int
}

var _ platform.Actions = (*FakeActions)(nil)

func NewFakeActions() *FakeActions {
	return &FakeActions{
		Errs:         make(map[string]error),
		RecentCounts: make(map[int64]int),
	}
}

func (a *FakeActions) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Errs["delete"]; err != nil {
		return err
	}
	a.Deleted = append(a.Deleted, messageID)
	return nil
}

func (a *FakeActions) BanLocal(ctx context.Context, chatID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Errs["ban_local"]; err != nil {
		return err
	}
	a.LocalBans = append(a.LocalBans, userID)
	return nil
}

func (a *FakeActions) SendText(ctx context.Context, chatID int64, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Errs["send"]; err != nil {
		return err
	}
	a.Sent = append(a.Sent, SentText{ChatID: chatID, Text: text})
	return nil
}

func (a *FakeActions) BanGlobal(ctx context.Context, userID int64, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Errs["ban_global"]; err != nil {
		return err
	}
	a.GlobalBans = append(a.GlobalBans, GlobalBan{UserID: userID, Reason: reason})
	return nil
}

func (a *FakeActions) PurgeHistory(ctx context.Context, chatID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Errs["purge"]; err != nil {
		return err
	}
	a.Purged = append(a.Purged, userID)
	return nil
}

func (a *FakeActions) CountRecentMessages(ctx context.Context, chatID, userID int64) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Errs["count"]; err != nil {
		return 0, err
	}
	return a.RecentCounts[userID], nil
}

type FakeAdmins struct {
	// chat id -> admin user ids
	Admins map[int64][]int64
}

var _ platform.AdminSource = (*FakeAdmins)(nil)

func NewFakeAdmins() *FakeAdmins {
	return &FakeAdmins{Admins: make(map[int64][]int64)}
}

func (f *FakeAdmins) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	for _, id := range f.Admins[chatID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// EngineTestFixture returns an engine wired to empty in-memory stores and
// recording fakes. Tests reach into the concrete types to seed blacklist
// entries and inspect recorded actions.
func EngineTestFixture() *Engine {
	cfg := DefaultConfig()
	// no sleeping in tests
	cfg.DelegateGrace = 0
	return &Engine{
		Logger:   slog.Default(),
		Store:    blacklist.NewMemStore(),
		Ledger:   ledger.NewMemLedger(),
		Resolver: NewFakeResolver(),
		Media:    NewFakeMedia(),
		Actions:  NewFakeActions(),
		Admins:   NewFakeAdmins(),
		Config:   cfg,
	}
}
