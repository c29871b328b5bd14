// Package engine evaluates inbound chat events against the blacklist tables
// and drives the ban-enforcement workflow for confirmed matches.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/ledger"
	"github.com/kantek-project/polizei/autobahn/phash"
	"github.com/kantek-project/polizei/autobahn/platform"
)

// Engine is the runtime for evaluating events and recording moderation
// actions. All collaborators are passed in explicitly; there are no hidden
// singletons.
//
// Fields should not be nil, even though they are pointer/interface types.
type Engine struct {
	Logger   *slog.Logger
	Store    blacklist.Store
	Ledger   ledger.Ledger
	Resolver platform.EntityResolver
	Media    platform.Media
	Actions  platform.Actions
	Admins   platform.AdminSource
	Config   Config
}

type Config struct {
	// bit-distance threshold for perceptual hash matches
	Tolerance int
	// non-photo files at or above this size are skipped, not downloaded
	FileSizeCeiling int64
	// accounts with ids below this floor predate the spam waves and are
	// never evaluated
	LegacyAccountFloor int64
	// purge a banned user's history only when they have at most this many
	// recent messages in the chat
	PurgeThreshold int
	// pause after instructing a delegated moderation actor
	DelegateGrace time.Duration
	// messages starting with these prefixes are admin blacklist-editing
	// commands and are never evaluated
	CommandPrefixes []string
	// domains belonging to the messaging platform itself; links to them
	// reference entities rather than external sites
	PlatformDomains []string
}

func DefaultConfig() Config {
	return Config{
		Tolerance:          phash.DefaultTolerance,
		FileSizeCeiling:    10 * 1024 * 1024,
		LegacyAccountFloor: 610000000,
		PurgeThreshold:     5,
		DelegateGrace:      250 * time.Millisecond,
		CommandPrefixes:    []string{"/addblacklist"},
		PlatformDomains:    []string{"t.me", "telegram.me", "telegram.dog"},
	}
}

func (cfg *Config) isPlatformDomain(domain string) bool {
	for _, d := range cfg.PlatformDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// ProcessMessage runs the full path for one inbound message: pre-filter,
// matcher pipeline, admin exclusion, enforcement. Returns nil when the
// message was skipped or did not match.
func (eng *Engine) ProcessMessage(ctx context.Context, chat Chat, msg *MessageContext) (out *Outcome, err error) {
	// similar to an HTTP server, we want to recover any panics from event processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("event processing exception", "err", r, "chat", chat.ID, "message", msg.MessageID)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("message").Inc()

	if chat.Exempt {
		return nil, nil
	}
	if eng.skipMessage(ctx, msg) {
		return nil, nil
	}

	match, err := eng.EvaluateMessage(ctx, msg)
	if err != nil {
		eventErrorCount.WithLabelValues("message").Inc()
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	eventMatchCount.WithLabelValues("message", match.Category.String()).Inc()

	isAdmin, err := eng.Admins.IsAdmin(ctx, chat.ID, msg.SenderID)
	if err != nil {
		eng.Logger.Warn("admin lookup failed, not enforcing", "err", err, "chat", chat.ID, "sender", msg.SenderID)
		return nil, nil
	}
	if isAdmin {
		eng.Logger.Info("sender is a chat admin, not enforcing", "chat", chat.ID, "sender", msg.SenderID)
		return nil, nil
	}

	return eng.Enforce(ctx, chat, msg.SenderID, msg.MessageID, *match)
}

// ProcessJoin runs the profile variant for a user joining a chat.
func (eng *Engine) ProcessJoin(ctx context.Context, chat Chat, profile *ProfileContext) (out *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("event processing exception", "err", r, "chat", chat.ID, "user", profile.UserID)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("join").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("join").Inc()

	if chat.Exempt {
		return nil, nil
	}

	match, err := eng.EvaluateProfile(ctx, profile)
	if err != nil {
		eventErrorCount.WithLabelValues("join").Inc()
		return nil, err
	}
	if match == nil {
		return nil, nil
	}
	eventMatchCount.WithLabelValues("join", match.Category.String()).Inc()

	return eng.Enforce(ctx, chat, profile.UserID, 0, *match)
}
