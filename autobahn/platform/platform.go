// Package platform declares the chat-platform collaborators the moderation
// engine consumes: entity/URL resolution, media access, and moderation
// actions. The engine only ever sees these interfaces; concrete transports
// live with the platform client.
package platform

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrNotFound indicates an entity or URL could not be resolved. Recoverable:
// the pipeline skips the sub-check that hit it.
var ErrNotFound = errors.New("entity not found")

// ErrPermissionDenied indicates a moderation action was attempted without the
// required rights on the chat.
var ErrPermissionDenied = errors.New("permission denied")

// MediaRef is an opaque handle to a downloadable photo or file.
type MediaRef string

// Entity is a resolved platform entity: a user, bot, or channel.
type Entity struct {
	ID       int64    `json:"id"`
	Username string   `json:"username,omitempty"`
	IsBot    bool     `json:"is_bot,omitempty"`
	Photo    MediaRef `json:"photo,omitempty"`
}

type EntityResolver interface {
	// ResolveURL follows a link to its final destination and returns the
	// canonical base domain (lower-case, no "www." prefix).
	ResolveURL(ctx context.Context, raw string) (string, error)
	// ResolveURLHost is like ResolveURL but returns the literal resolved
	// host-and-path form without canonicalization, used to extract entity
	// usernames from platform links.
	ResolveURLHost(ctx context.Context, raw string) (string, error)
	// ResolveEntity looks up an entity by username or numeric id string.
	// Returns ErrNotFound when the identifier does not resolve.
	ResolveEntity(ctx context.Context, identifier string) (*Entity, error)
}

type Media interface {
	Download(ctx context.Context, ref MediaRef) ([]byte, error)
}

// Actions are the side-effecting moderation primitives the enforcement
// workflow drives. Each call is a platform RPC and may fail independently.
type Actions interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	BanLocal(ctx context.Context, chatID, userID int64) error
	SendText(ctx context.Context, chatID int64, text string) error
	BanGlobal(ctx context.Context, userID int64, reason string) error
	PurgeHistory(ctx context.Context, chatID, userID int64) error
	CountRecentMessages(ctx context.Context, chatID, userID int64) (int, error)
}

// AdminSource answers "is this user an admin of this chat". The engine only
// consumes the boolean.
type AdminSource interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Netloc extracts the literal host of a URL-ish string, lower-cased, tolerant
// of a missing scheme.
func Netloc(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
