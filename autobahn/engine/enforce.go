package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/ledger"
)

// FormatReason renders the ledger-stable ban reason for a match. The format
// must be reproduced bit-exactly across versions: dedupe lookups compare
// against reasons written by every prior deployment.
func FormatReason(m blacklist.Match) string {
	return fmt.Sprintf("Spambot[kv2 %s 0x%04d]", m.Category, int64(m.Reason))
}

// Outcome reports what the enforcement workflow actually did. Steps are
// independent: any subset may have succeeded.
type Outcome struct {
	Match  blacklist.Match
	Reason string
	// an identical ban was already recorded; nothing further was done
	Deduped bool

	MessageDeleted bool
	LocalBanned    bool
	Delegated      bool
	GlobalBanned   bool
	HistoryPurged  bool
}

// Enforce runs the ban workflow for a confirmed match. The steps are strictly
// ordered and deliberately not transactional: a failed step is logged and the
// workflow continues, leaving partial enforcement for the next identical
// trigger to complete (it re-enters at the dedupe check).
//
// messageID 0 means there is no offending message to delete (join events).
func (eng *Engine) Enforce(ctx context.Context, chat Chat, userID, messageID int64, match blacklist.Match) (*Outcome, error) {
	out := &Outcome{Match: match, Reason: FormatReason(match)}
	logger := eng.Logger.With("chat", chat.ID, "user", userID, "reason", out.Reason)

	// best-effort delete of the offending message
	if messageID != 0 {
		if err := eng.Actions.DeleteMessage(ctx, chat.ID, messageID); err != nil {
			enforcementStepCount.WithLabelValues("delete", "error").Inc()
			logger.Warn("deleting message failed", "err", err, "message", messageID)
		} else {
			enforcementStepCount.WithLabelValues("delete", "ok").Inc()
			out.MessageDeleted = true
		}
	}

	// idempotency guard: an existing record for the same user and reason
	// means a previous workflow already completed
	n, err := eng.Ledger.CountMatching(ctx, userID, out.Reason)
	if err != nil {
		return out, fmt.Errorf("ban ledger lookup: %w", err)
	}
	if n > 0 {
		logger.Info("user already banned for the same reason")
		out.Deduped = true
		return out, nil
	}

	if chat.Creator || chat.AdminRights {
		switch chat.BanMode.Kind {
		case BanManual:
			if err := eng.Actions.BanLocal(ctx, chat.ID, userID); err != nil {
				// permission errors fall through to the global ban
				enforcementStepCount.WithLabelValues("ban_local", "error").Inc()
				logger.Warn("local ban failed", "err", err)
			} else {
				enforcementStepCount.WithLabelValues("ban_local", "ok").Inc()
				out.LocalBanned = true
			}
		case BanDelegate:
			text := fmt.Sprintf("%s %d %s", chat.BanMode.Template, userID, out.Reason)
			if err := eng.Actions.SendText(ctx, chat.ID, text); err != nil {
				enforcementStepCount.WithLabelValues("delegate", "error").Inc()
				logger.Warn("delegated ban instruction failed", "err", err)
			} else {
				enforcementStepCount.WithLabelValues("delegate", "ok").Inc()
				out.Delegated = true
				// give the delegated actor a moment to act before the
				// global ban races it
				time.Sleep(eng.Config.DelegateGrace)
			}
		case BanNone:
			// local enforcement disabled for this chat
		}
	}

	// always attempt the global ban; the ledger record is written only on
	// success so a failed propagation is retried by the next trigger
	if err := eng.Actions.BanGlobal(ctx, userID, out.Reason); err != nil {
		enforcementStepCount.WithLabelValues("ban_global", "error").Inc()
		logger.Error("global ban failed", "err", err)
	} else {
		enforcementStepCount.WithLabelValues("ban_global", "ok").Inc()
		out.GlobalBanned = true
		inserted, err := eng.Ledger.Append(ctx, ledger.BanRecord{
			UserID:   userID,
			Reason:   out.Reason,
			BannedAt: time.Now().UTC(),
		})
		if err != nil {
			logger.Error("recording ban failed", "err", err)
		} else if !inserted {
			// a concurrent workflow for the same match got there first
			logger.Info("ban already recorded concurrently")
		}
	}

	// cheap cleanup for drive-by spammers; long-standing participants keep
	// their history
	count, err := eng.Actions.CountRecentMessages(ctx, chat.ID, userID)
	if err != nil {
		logger.Warn("counting user history failed", "err", err)
		return out, nil
	}
	if count <= eng.Config.PurgeThreshold {
		if err := eng.Actions.PurgeHistory(ctx, chat.ID, userID); err != nil {
			enforcementStepCount.WithLabelValues("purge", "error").Inc()
			logger.Warn("purging history failed", "err", err)
		} else {
			enforcementStepCount.WithLabelValues("purge", "ok").Inc()
			out.HistoryPurged = true
		}
	}

	return out, nil
}
