package engine

import (
	"strings"

	"github.com/kantek-project/polizei/autobahn/platform"
)

// EntityKind tags a text span inside a message.
type EntityKind int

const (
	// a bare URL in the message text
	KindURL EntityKind = iota + 1
	// a URL hidden behind display text
	KindTextURL
	// an @mention of another entity
	KindMention
)

// Entity is one tagged span of message text.
type Entity struct {
	Kind EntityKind
	// the literal text of the span
	Text string
	// for KindTextURL, the hidden target URL
	URL string
}

// Button is an inline keyboard button attached to a message.
type Button struct {
	Text string
	URL  string
}

// LinkPreview is the platform-generated preview of a link in the message.
type LinkPreview struct {
	URL         string
	Title       string
	Description string
}

// FileMeta describes an attached non-photo file.
type FileMeta struct {
	Size int64
	Ref  platform.MediaRef
	// documents are hash-checked; photos go through the perceptual-hash
	// path instead
	IsDocument bool
}

// MessageContext is the transport-independent view of an inbound message the
// pipeline evaluates. Immutable once constructed.
type MessageContext struct {
	ChatID    int64
	MessageID int64
	SenderID  int64
	// id of the inline bot this message was sent via, 0 if none
	ViaBotID int64

	Text     string
	Entities []Entity
	Buttons  []Button
	Preview  *LinkPreview
	File     *FileMeta
	// photo payload, "" if none
	Photo platform.MediaRef
}

// ProfileContext is the view of a joining user's profile.
type ProfileContext struct {
	UserID int64
	Bio    string
	Photo  platform.MediaRef
}

// BanModeKind selects how the local (in-chat) ban step is performed.
type BanModeKind int

const (
	// ban directly with the acting account's own rights
	BanManual BanModeKind = iota
	// skip local enforcement entirely
	BanNone
	// instruct another moderation actor to perform the ban
	BanDelegate
)

type BanMode struct {
	Kind BanModeKind
	// command template for delegate mode
	Template string
}

// ParseBanMode interprets a chat's configured ban command. "manual" bans
// directly, "none" (or empty) skips local enforcement, "delegate:<template>"
// or any other bare string delegates to that command.
func ParseBanMode(s string) BanMode {
	switch s {
	case "manual":
		return BanMode{Kind: BanManual}
	case "", "none":
		return BanMode{Kind: BanNone}
	}
	if tmpl, ok := strings.CutPrefix(s, "delegate:"); ok {
		return BanMode{Kind: BanDelegate, Template: tmpl}
	}
	return BanMode{Kind: BanDelegate, Template: s}
}

// Chat carries the per-chat facts enforcement needs: the acting account's
// rights and the chat's configured ban command.
type Chat struct {
	ID int64
	// the acting account created this chat
	Creator bool
	// the acting account holds admin rights here
	AdminRights bool
	BanMode     BanMode
	// chats tagged as excluded are never evaluated
	Exempt bool
}
