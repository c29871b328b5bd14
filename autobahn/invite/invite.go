// Package invite parses chat invite links.
package invite

import (
	"encoding/base64"
	"encoding/binary"
	"net/url"
	"strings"
)

// Link is the decoded payload of a chat invite link.
//
// Older invite payloads pack the creating user id, the chat id, and a random
// component; newer payloads are opaque, in which case only RandomPart is set.
type Link struct {
	CreatorID  int64
	ChatID     int64
	RandomPart string
}

var inviteHosts = map[string]bool{
	"t.me":         true,
	"telegram.me":  true,
	"telegram.dog": true,
}

// Resolve parses text as a chat invite link. It returns nil for anything that
// is not one; malformed or unrelated input is the common case, not an error.
func Resolve(text string) *Link {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var payload string
	if u, err := url.Parse(text); err == nil && u.Scheme == "tg" {
		if u.Host != "join" {
			return nil
		}
		payload = u.Query().Get("invite")
	} else {
		raw := text
		raw = strings.TrimPrefix(raw, "http://")
		raw = strings.TrimPrefix(raw, "https://")
		raw = strings.TrimPrefix(raw, "www.")
		host, path, ok := strings.Cut(raw, "/")
		if !ok || !inviteHosts[strings.ToLower(host)] {
			return nil
		}
		path, _, _ = strings.Cut(path, "?")
		switch {
		case strings.HasPrefix(path, "joinchat/"):
			payload = strings.TrimPrefix(path, "joinchat/")
		case strings.HasPrefix(path, "+"):
			payload = strings.TrimPrefix(path, "+")
		default:
			return nil
		}
	}
	payload = strings.TrimSuffix(payload, "/")
	if payload == "" {
		return nil
	}

	link := &Link{RandomPart: payload}
	// legacy payloads decode to creator id, chat id, random component
	if data, err := base64.RawURLEncoding.DecodeString(payload); err == nil && len(data) == 16 {
		link.CreatorID = int64(int32(binary.BigEndian.Uint32(data[0:4])))
		link.ChatID = int64(int32(binary.BigEndian.Uint32(data[4:8])))
	}
	return link
}
