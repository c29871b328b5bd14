// Package blacklist defines the moderation blacklist categories, their typed
// tables, and the store interface the matcher pipeline reads from.
package blacklist

import (
	"context"
)

// Category tags one of the independently maintained blacklist tables.
type Category int

const (
	CategoryInlineBot Category = iota + 1
	CategoryChannel
	CategoryDomain
	CategoryLinkPreview
	CategoryString
	CategoryFile
	CategoryPerceptualHash
	CategoryBio
)

// The string form is embedded in formatted ban reasons, which are matched
// bit-exactly against the ban ledger. Do not rename.
func (c Category) String() string {
	switch c {
	case CategoryInlineBot:
		return "bot"
	case CategoryChannel:
		return "channel"
	case CategoryDomain:
		return "domain"
	case CategoryLinkPreview:
		return "preview"
	case CategoryString:
		return "string"
	case CategoryFile:
		return "file"
	case CategoryPerceptualHash:
		return "mhash"
	case CategoryBio:
		return "bio"
	default:
		return "unknown"
	}
}

// ReasonCode is an opaque identifier for the rule that matched. It is rendered
// into human-readable ban reasons elsewhere.
type ReasonCode int64

// Match is the outcome of a pipeline evaluation: which category matched, and
// the reason code of the matching entry. At most one is produced per event.
type Match struct {
	Category Category
	Reason   ReasonCode
}

// LinkPreviewRule matches a message's link preview: the substring must occur
// in the (lower-cased) title or description, and, when Domains is non-empty,
// the preview URL's host must be one of them.
type LinkPreviewRule struct {
	Domains   []string
	Substring string
	Reason    ReasonCode
}

func (r *LinkPreviewRule) MatchesDomain(domain string) bool {
	if len(r.Domains) == 0 {
		return true
	}
	for _, d := range r.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// Snapshot holds one internally consistent view of every blacklist table, for
// the duration of a single pipeline evaluation. Read-only.
type Snapshot struct {
	// channel (and inline bot) ids
	Channels map[int64]ReasonCode
	// lower-case domains
	Domains map[string]ReasonCode
	// message substrings, case-sensitive
	Strings map[string]ReasonCode
	// bio substrings, case-sensitive
	Bios map[string]ReasonCode
	// hex digests of file contents
	Files map[string]ReasonCode
	// hex perceptual hashes
	Hashes map[string]ReasonCode
	// structured link-preview rules
	LinkPreviews []LinkPreviewRule
}

// Store produces blacklist snapshots. Mutation is an administrative operation
// on the concrete backend, never part of this interface.
type Store interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}
