// Package gallery holds the doodle domain: the submission pipeline, the
// reaction ledger and the cached feed reads, along with the ports they call
// through.
package gallery

import (
	"errors"
	"time"
)

// ModerationStatus gates public visibility of a doodle.
type ModerationStatus string

const (
	StatusPending  ModerationStatus = "pending"
	StatusApproved ModerationStatus = "approved"
)

// DefaultUserName is used when a submission carries no display name.
const DefaultUserName = "Anonymous"

// A ReactionKind is one of the fixed reactions a doodle can receive.
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionLove  ReactionKind = "love"
	ReactionFire  ReactionKind = "fire"
	ReactionLaugh ReactionKind = "laugh"
)

// ReactionKinds lists every valid reaction kind.
var ReactionKinds = []ReactionKind{ReactionLike, ReactionLove, ReactionFire, ReactionLaugh}

// ParseReactionKind returns the kind named by s or ErrInvalidReaction.
func ParseReactionKind(s string) (ReactionKind, error) {
	for _, k := range ReactionKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", ErrInvalidReaction
}

// Counts holds the per-kind reaction counters of a doodle.
type Counts struct {
	Like  int `json:"like"`
	Love  int `json:"love"`
	Fire  int `json:"fire"`
	Laugh int `json:"laugh"`
}

// Total returns the sum of all counters.
func (c Counts) Total() int {
	return c.Like + c.Love + c.Fire + c.Laugh
}

// Get returns the counter for kind.
func (c Counts) Get(kind ReactionKind) int {
	switch kind {
	case ReactionLike:
		return c.Like
	case ReactionLove:
		return c.Love
	case ReactionFire:
		return c.Fire
	case ReactionLaugh:
		return c.Laugh
	}
	return 0
}

// A Doodle represents a persisted artwork submission.
type Doodle struct {
	ID               string           `json:"id"`
	ImageURL         string           `json:"imageUrl"`
	Fingerprint      string           `json:"-"`
	UserName         string           `json:"userName"`
	SessionID        string           `json:"-"`
	WaitlistRank     int64            `json:"waitlistRank"`
	Reactions        Counts           `json:"reactions"`
	Featured         bool             `json:"featured"`
	ModerationStatus ModerationStatus `json:"moderationStatus"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// A Reaction is a single (doodle, origin, kind) vote.
type Reaction struct {
	ID            string
	DoodleID      string
	Kind          ReactionKind
	OriginAddress string
	CreatedAt     time.Time
}

// Sort selects the ordering of the approved feed.
type Sort string

const (
	SortRecent   Sort = "recent"
	SortPopular  Sort = "popular"
	SortFeatured Sort = "featured"
)

// ParseSort maps s onto a known sort mode, falling back to SortRecent.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortPopular, SortFeatured:
		return Sort(s)
	}
	return SortRecent
}

// Stats aggregates the approved feed.
type Stats struct {
	TotalDoodles   int `json:"totalDoodles"`
	UniqueArtists  int `json:"uniqueArtists"`
	TotalReactions int `json:"totalReactions"`
}

// Pagination describes the position of a Page within the feed.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasMore bool `json:"hasMore"`
}

// A Page is one slice of the approved feed.
type Page struct {
	Doodles    []Doodle   `json:"doodles"`
	Pagination Pagination `json:"pagination"`
}

var (
	// ErrMissingImage is returned when a submission carries no image payload.
	ErrMissingImage = errors.New("image data required")
	// ErrImageTooLarge is returned when the raw image exceeds the size ceiling.
	ErrImageTooLarge = errors.New("image too large")
	// ErrInvalidImage is returned when the payload cannot be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidReaction is returned for reaction kinds outside ReactionKinds.
	ErrInvalidReaction = errors.New("invalid reaction type")
	// ErrDuplicateImage is returned when the same image was submitted in the last 24 hours.
	ErrDuplicateImage = errors.New("duplicate image detected")
	// ErrAlreadyReacted is returned when the origin already left this reaction.
	ErrAlreadyReacted = errors.New("already reacted")
	// ErrNotFound is returned when the doodle does not exist.
	ErrNotFound = errors.New("doodle not found")
	// ErrConstraintViolation is returned when a store insert collides on its primary key.
	ErrConstraintViolation = errors.New("constraint violation")
)
