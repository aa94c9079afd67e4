package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Ledger records reactions. Deduplication of the (doodle, origin, kind)
// triple is delegated to Store.React, which enforces it atomically.
type Ledger struct {
	Logger    *slog.Logger
	Store     Store
	Cache     Cache
	Publisher Publisher
}

// React records a reaction of kind on the doodle from origin and returns the
// updated counters.
func (l *Ledger) React(ctx context.Context, doodleID, kind, origin string) (Counts, error) {
	k, err := ParseReactionKind(kind)
	if err != nil {
		return Counts{}, err
	}

	counts, err := l.Store.React(ctx, Reaction{
		ID:            uuid.NewString(),
		DoodleID:      doodleID,
		Kind:          k,
		OriginAddress: origin,
		CreatedAt:     time.Now().UTC(),
	})
	switch {
	case errors.Is(err, ErrAlreadyReacted):
		return Counts{}, ErrAlreadyReacted
	case errors.Is(err, ErrNotFound):
		return Counts{}, ErrNotFound
	case err != nil:
		return Counts{}, fmt.Errorf("react: %w", err)
	}

	l.Logger.Info("Reaction recorded", "id", doodleID, "kind", k, "count", counts.Get(k))
	invalidate(ctx, l.Logger, l.Cache)
	l.Publisher.ReactionUpdated(doodleID, counts)
	return counts, nil
}
