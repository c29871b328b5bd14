package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/kantek-project/polizei/autobahn/platform"
)

// skipMessage decides whether a message is excluded from evaluation entirely.
// This runs before the pipeline: it is policy about who gets evaluated, not a
// blacklist category.
func (eng *Engine) skipMessage(ctx context.Context, msg *MessageContext) bool {
	if msg.SenderID == 0 {
		return true
	}
	// accounts below the floor predate the spam waves
	if msg.SenderID < eng.Config.LegacyAccountFloor {
		return true
	}

	// no need to ban bots, they can only be added by users anyway
	sender, err := eng.Resolver.ResolveEntity(ctx, strconv.FormatInt(msg.SenderID, 10))
	if err != nil {
		if !errors.Is(err, platform.ErrNotFound) {
			eng.Logger.Warn("sender lookup failed", "err", err, "sender", msg.SenderID)
		}
	} else if sender.IsBot {
		return true
	}

	// admins paste blacklist entries into editing commands; don't ban them
	// for quoting the blacklist
	for _, prefix := range eng.Config.CommandPrefixes {
		if strings.HasPrefix(msg.Text, prefix) {
			return true
		}
	}
	return false
}
