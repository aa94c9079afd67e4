package gallery

import (
	"context"
	"time"
)

// DuplicateWindow is how far back a fingerprint counts as a duplicate.
const DuplicateWindow = 24 * time.Hour

// A Store persists doodles and reactions.
type Store interface {
	// CheckDuplicate reports whether a doodle with the fingerprint was
	// created within DuplicateWindow of now.
	CheckDuplicate(ctx context.Context, fingerprint string) (bool, error)
	// InsertDoodle persists d and returns it with store assigned fields such
	// as the waitlist rank. It fails with ErrDuplicateImage when a doodle
	// with the same fingerprint was inserted within DuplicateWindow.
	InsertDoodle(ctx context.Context, d Doodle) (Doodle, error)
	ListApproved(ctx context.Context, sort Sort, limit, offset int) ([]Doodle, int, error)
	ListFeatured(ctx context.Context, limit int) ([]Doodle, error)
	Stats(ctx context.Context) (Stats, error)
	// IncrementReaction adds one to the counter of kind and returns the new
	// counters, or ErrNotFound.
	IncrementReaction(ctx context.Context, doodleID string, kind ReactionKind) (Counts, error)
	// React records r and increments its counter atomically. It fails with
	// ErrAlreadyReacted when the (doodle, origin, kind) triple exists.
	React(ctx context.Context, r Reaction) (Counts, error)
}

// A Cache stores rendered feed pages.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// A Publisher notifies live subscribers. Implementations must not block.
type Publisher interface {
	DoodleCreated(d Doodle)
	ReactionUpdated(doodleID string, counts Counts)
}

// An ImageProcessor normalizes, fingerprints and screens uploads.
type ImageProcessor interface {
	Normalize(raw []byte) ([]byte, error)
	Fingerprint(b []byte) string
	IsLikelyBlank(b []byte) (bool, error)
}

// A BlobStore keeps normalized image bytes.
type BlobStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
}

// FeedPrefix namespaces every cached feed page.
const FeedPrefix = "doodles:"
