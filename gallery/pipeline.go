package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageBytes is the size ceiling for a raw upload.
const MaxImageBytes = 5 << 20

// A Submission is an inbound doodle upload.
type Submission struct {
	Image     []byte
	UserName  string
	SessionID string
}

// Pipeline turns submissions into persisted doodles: it validates,
// normalizes, deduplicates and moderates the image, persists it, invalidates
// the feed cache and notifies live subscribers.
type Pipeline struct {
	Logger    *slog.Logger
	Store     Store
	Cache     Cache
	Images    ImageProcessor
	Blobs     BlobStore
	Publisher Publisher

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Submit runs s through the pipeline. Pending doodles are persisted but not
// broadcast.
func (p *Pipeline) Submit(ctx context.Context, s Submission) (Doodle, error) {
	if len(s.Image) == 0 {
		return Doodle{}, ErrMissingImage
	}
	if len(s.Image) > MaxImageBytes {
		return Doodle{}, ErrImageTooLarge
	}

	normalized, err := p.Images.Normalize(s.Image)
	if err != nil {
		return Doodle{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	fingerprint := p.Images.Fingerprint(normalized)
	dup, err := p.Store.CheckDuplicate(ctx, fingerprint)
	if err != nil {
		return Doodle{}, fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		return Doodle{}, ErrDuplicateImage
	}

	blank, err := p.Images.IsLikelyBlank(normalized)
	if err != nil {
		return Doodle{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	status := StatusApproved
	if blank {
		status = StatusPending
	}

	now := p.now().UTC()
	d := Doodle{
		ID:               p.newID(),
		Fingerprint:      fingerprint,
		UserName:         strings.TrimSpace(s.UserName),
		SessionID:        s.SessionID,
		ModerationStatus: status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if d.UserName == "" {
		d.UserName = DefaultUserName
	}
	if d.SessionID == "" {
		d.SessionID = p.newID()
	}

	name := d.ID + ".png"
	d.ImageURL = "/uploads/" + name
	if err := p.Blobs.Save(ctx, name, normalized); err != nil {
		return Doodle{}, fmt.Errorf("save image: %w", err)
	}

	d, err = p.Store.InsertDoodle(ctx, d)
	if err != nil {
		if rmErr := p.Blobs.Remove(ctx, name); rmErr != nil {
			p.Logger.Warn("Could not remove orphaned image", "name", name, "error", rmErr.Error())
		}
		if errors.Is(err, ErrDuplicateImage) {
			return Doodle{}, ErrDuplicateImage
		}
		return Doodle{}, fmt.Errorf("insert doodle: %w", err)
	}

	invalidate(ctx, p.Logger, p.Cache)

	if d.ModerationStatus != StatusApproved {
		p.Logger.Info("Doodle held for moderation", "id", d.ID)
		return d, nil
	}
	p.Publisher.DoodleCreated(d)
	p.Logger.Info("Doodle created", "id", d.ID, "rank", d.WaitlistRank)
	return d, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) newID() string {
	if p.NewID != nil {
		return p.NewID()
	}
	return uuid.NewString()
}

// invalidate drops every cached feed page. A failure is logged and does not
// fail the write that triggered it.
func invalidate(ctx context.Context, logger *slog.Logger, cache Cache) {
	if err := cache.InvalidatePrefix(ctx, FeedPrefix); err != nil {
		logger.Error("Could not invalidate feed cache", "error", err.Error())
	}
}
