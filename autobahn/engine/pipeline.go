package engine

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/sha256-simd"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/invite"
	"github.com/kantek-project/polizei/autobahn/phash"
	"github.com/kantek-project/polizei/autobahn/platform"
)

// EvaluateMessage checks a message against every blacklist category, in fixed
// order, and returns the first match or nil. The order is policy: earlier
// checks are cheaper or higher-confidence signals.
//
// Failures of individual entity or URL resolutions are logged and treated as
// "no opinion" from that sub-check; only malformed blacklist data (a
// perceptual hash that can not be compared) propagates as an error.
func (eng *Engine) EvaluateMessage(ctx context.Context, msg *MessageContext) (*blacklist.Match, error) {
	snap, err := eng.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	logger := eng.Logger.With("chat", msg.ChatID, "sender", msg.SenderID, "message", msg.MessageID)

	// 1. inline bot
	if msg.ViaBotID != 0 {
		if reason, ok := snap.Channels[msg.ViaBotID]; ok {
			return &blacklist.Match{Category: blacklist.CategoryInlineBot, Reason: reason}, nil
		}
	}

	// 2. link preview
	if msg.Preview != nil {
		domain := platform.Netloc(msg.Preview.URL)
		title := strings.ToLower(msg.Preview.Title)
		description := strings.ToLower(msg.Preview.Description)
		for _, rule := range snap.LinkPreviews {
			if !rule.MatchesDomain(domain) {
				continue
			}
			if strings.Contains(title, rule.Substring) || strings.Contains(description, rule.Substring) {
				return &blacklist.Match{Category: blacklist.CategoryLinkPreview, Reason: rule.Reason}, nil
			}
		}
	}

	// 3. button URLs
	for _, b := range msg.Buttons {
		if b.URL == "" {
			continue
		}
		if m := eng.checkButtonURL(ctx, logger, snap, b.URL); m != nil {
			return m, nil
		}
	}

	// 4. text entities
	for _, ent := range msg.Entities {
		m, err := eng.checkEntity(ctx, logger, snap, ent)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	// 5. substrings
	for s, reason := range snap.Strings {
		if strings.Contains(msg.Text, s) {
			return &blacklist.Match{Category: blacklist.CategoryString, Reason: reason}, nil
		}
	}

	// 6. file content hash
	if msg.File != nil && msg.File.IsDocument {
		if msg.File.Size >= eng.Config.FileSizeCeiling {
			// deliberate availability tradeoff: never download huge files
			oversizedFileCount.Inc()
			logger.Warn("skipped file above size ceiling", "size", msg.File.Size)
		} else if data, ok := eng.download(ctx, logger, msg.File.Ref); ok {
			digest := sha256.Sum256(data)
			if reason, found := snap.Files[hex.EncodeToString(digest[:])]; found {
				return &blacklist.Match{Category: blacklist.CategoryFile, Reason: reason}, nil
			}
		}
	}

	// 7. photo perceptual hash
	if msg.Photo != "" {
		m, err := eng.checkImage(ctx, logger, snap, msg.Photo)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	return nil, nil
}

// EvaluateProfile checks a joining user's profile: bio substrings against the
// bio blacklist, profile photo against the perceptual-hash blacklist.
func (eng *Engine) EvaluateProfile(ctx context.Context, profile *ProfileContext) (*blacklist.Match, error) {
	snap, err := eng.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	logger := eng.Logger.With("user", profile.UserID)

	if profile.Bio != "" {
		for s, reason := range snap.Bios {
			if strings.Contains(profile.Bio, s) {
				return &blacklist.Match{Category: blacklist.CategoryBio, Reason: reason}, nil
			}
		}
	}

	if profile.Photo != "" {
		m, err := eng.checkImage(ctx, logger, snap, profile.Photo)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}

	return nil, nil
}

// checkButtonURL applies the invite/domain/channel checks to one button URL.
func (eng *Engine) checkButtonURL(ctx context.Context, logger *slog.Logger, snap *blacklist.Snapshot, url string) *blacklist.Match {
	if l := invite.Resolve(url); l != nil && l.ChatID != 0 {
		if reason, ok := snap.Channels[l.ChatID]; ok {
			return &blacklist.Match{Category: blacklist.CategoryChannel, Reason: reason}
		}
	}

	domain, err := eng.Resolver.ResolveURL(ctx, url)
	if err != nil {
		logger.Warn("button url resolution failed", "err", err, "url", url)
		return nil
	}
	if reason, ok := snap.Domains[domain]; ok {
		return &blacklist.Match{Category: blacklist.CategoryDomain, Reason: reason}
	}

	if face := platform.Netloc(url); face != "" {
		if reason, ok := snap.Domains[face]; ok {
			return &blacklist.Match{Category: blacklist.CategoryDomain, Reason: reason}
		}
	}

	if eng.Config.isPlatformDomain(domain) {
		hostForm, err := eng.Resolver.ResolveURLHost(ctx, url)
		if err != nil {
			logger.Warn("button url host resolution failed", "err", err, "url", url)
			return nil
		}
		username := usernameFromHostForm(hostForm)
		if username == "" {
			return nil
		}
		ent, err := eng.Resolver.ResolveEntity(ctx, username)
		if err != nil {
			logger.Warn("button entity resolution failed", "err", err, "username", username)
			return nil
		}
		if reason, ok := snap.Channels[ent.ID]; ok {
			return &blacklist.Match{Category: blacklist.CategoryChannel, Reason: reason}
		}
	}
	return nil
}

// checkEntity applies the invite/domain/entity checks to one tagged text span.
func (eng *Engine) checkEntity(ctx context.Context, logger *slog.Logger, snap *blacklist.Snapshot, ent Entity) (*blacklist.Match, error) {
	target := ent.Text
	if ent.Kind == KindTextURL {
		target = ent.URL
	}

	if l := invite.Resolve(target); l != nil && l.ChatID != 0 {
		if reason, ok := snap.Channels[l.ChatID]; ok {
			return &blacklist.Match{Category: blacklist.CategoryChannel, Reason: reason}, nil
		}
	}

	var domain, faceDomain, identifier string
	switch ent.Kind {
	case KindURL, KindTextURL:
		d, err := eng.Resolver.ResolveURL(ctx, target)
		if err != nil {
			logger.Warn("url resolution failed", "err", err, "url", target)
		} else {
			domain = d
		}
		faceDomain = platform.Netloc(target)
		if eng.Config.isPlatformDomain(domain) {
			hostForm, err := eng.Resolver.ResolveURLHost(ctx, target)
			if err != nil {
				logger.Warn("url host resolution failed", "err", err, "url", target)
			} else {
				identifier = usernameFromHostForm(hostForm)
			}
		}
	case KindMention:
		identifier = strings.TrimPrefix(ent.Text, "@")
	}

	// a platform link or mention references an entity: check its
	// representative image against the perceptual-hash table, and its id
	// against the channel table
	var channelID int64
	if identifier != "" {
		resolved, err := eng.Resolver.ResolveEntity(ctx, identifier)
		if err != nil {
			logger.Warn("entity resolution failed", "err", err, "identifier", identifier)
		} else {
			channelID = resolved.ID
			if resolved.Photo != "" {
				m, err := eng.checkImage(ctx, logger, snap, resolved.Photo)
				if err != nil {
					return nil, err
				}
				if m != nil {
					return m, nil
				}
			}
		}
	}

	// urls without a scheme have no parseable face domain
	if faceDomain == "" && domain != "" {
		faceDomain = platform.Netloc("http://" + domain)
	}

	if domain != "" {
		if reason, ok := snap.Domains[domain]; ok {
			return &blacklist.Match{Category: blacklist.CategoryDomain, Reason: reason}, nil
		}
	}
	if faceDomain != "" {
		if reason, ok := snap.Domains[faceDomain]; ok {
			return &blacklist.Match{Category: blacklist.CategoryDomain, Reason: reason}, nil
		}
	}
	if channelID != 0 {
		if reason, ok := snap.Channels[channelID]; ok {
			return &blacklist.Match{Category: blacklist.CategoryChannel, Reason: reason}, nil
		}
	}
	return nil, nil
}

// checkImage downloads an image, hashes it, and tests it against every
// perceptual-hash entry. Download and decode failures are logged and skipped;
// a hash that can not be compared propagates.
func (eng *Engine) checkImage(ctx context.Context, logger *slog.Logger, snap *blacklist.Snapshot, ref platform.MediaRef) (*blacklist.Match, error) {
	data, ok := eng.download(ctx, logger, ref)
	if !ok {
		return nil, nil
	}
	imageHash, err := phash.HashImage(data)
	if err != nil {
		logger.Warn("image hashing failed", "err", err)
		return nil, nil
	}
	for entry, reason := range snap.Hashes {
		similar, err := phash.Similar(entry, imageHash, eng.Config.Tolerance)
		if err != nil {
			// corrupt blacklist data, surface it
			return nil, err
		}
		if similar {
			return &blacklist.Match{Category: blacklist.CategoryPerceptualHash, Reason: reason}, nil
		}
	}
	return nil, nil
}

func (eng *Engine) download(ctx context.Context, logger *slog.Logger, ref platform.MediaRef) ([]byte, bool) {
	start := time.Now()
	data, err := eng.Media.Download(ctx, ref)
	mediaDownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		mediaDownloadCount.WithLabelValues("error").Inc()
		logger.Warn("media download failed", "err", err)
		return nil, false
	}
	mediaDownloadCount.WithLabelValues("ok").Inc()
	return data, true
}

// usernameFromHostForm extracts the entity username from a resolved
// host-and-path form like "t.me/spamchannel?start=x". Query parameters are
// dropped and a leading @ stripped; some clients accept it in links.
func usernameFromHostForm(hostForm string) string {
	hostForm, _, _ = strings.Cut(hostForm, "?")
	hostForm = strings.TrimSuffix(hostForm, "/")
	_, path, ok := strings.Cut(hostForm, "/")
	if !ok {
		return ""
	}
	seg := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		seg = path[idx+1:]
	}
	return strings.TrimPrefix(seg, "@")
}
