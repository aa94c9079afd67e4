package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/argo/doodlewall/gallery"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Postgres provides storage in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Migrate creates the tables and indexes if they do not exist yet.
func (pg *Postgres) Migrate(ctx context.Context) error {
	if _, err := pg.bun.NewCreateTable().
		Model((*doodle)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("create doodles: %w", err)
	}
	if _, err := pg.bun.NewCreateTable().
		Model((*reaction)(nil)).
		IfNotExists().
		ForeignKey(`("doodle_id") REFERENCES "doodles" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("create reactions: %w", err)
	}

	indexes := []struct {
		name  string
		expr  string
		where string
	}{
		{name: "idx_doodles_created", expr: "created_at DESC"},
		{name: "idx_doodles_featured", expr: "is_featured", where: "is_featured = true"},
		{name: "idx_doodles_moderation", expr: "moderation_status"},
		{name: "idx_doodles_hash", expr: "image_hash"},
	}
	for _, idx := range indexes {
		q := pg.bun.NewCreateIndex().
			Model((*doodle)(nil)).
			Index(idx.name).
			IfNotExists().
			ColumnExpr(idx.expr)
		if idx.where != "" {
			q = q.Where(idx.where)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// Close closes the database connection pool.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// recentHash restricts q to doodles with the fingerprint created within the
// duplicate window.
func recentHash(q *bun.SelectQuery, fingerprint string) *bun.SelectQuery {
	return q.Where("image_hash = ?", fingerprint).
		Where("created_at > now() - ?::interval", fmt.Sprintf("%d seconds", int(gallery.DuplicateWindow.Seconds())))
}

// CheckDuplicate reports whether a doodle with the fingerprint was created in
// the trailing duplicate window.
func (pg *Postgres) CheckDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	exists, err := recentHash(pg.bun.NewSelect().Model((*doodle)(nil)), fingerprint).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return exists, nil
}

// InsertDoodle inserts a doodle into the database. The duplicate check and
// the insert run in one transaction under an advisory lock keyed by the
// fingerprint, so concurrent submissions of the same image cannot both land.
// The returned doodle holds the assigned waitlist rank.
func (pg *Postgres) InsertDoodle(ctx context.Context, d gallery.Doodle) (gallery.Doodle, error) {
	m := newDoodle(d)
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", d.Fingerprint); err != nil {
			return fmt.Errorf("lock fingerprint: %w", err)
		}
		exists, err := recentHash(tx.NewSelect().Model((*doodle)(nil)), d.Fingerprint).Exists(ctx)
		if err != nil {
			return fmt.Errorf("exists: %w", err)
		}
		if exists {
			return gallery.ErrDuplicateImage
		}
		if _, err := tx.NewInsert().Model(m).Returning("*").Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return gallery.ErrConstraintViolation
			}
			return fmt.Errorf("insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return gallery.Doodle{}, err
	}
	return m.APIDoodle(), nil
}

// ListApproved returns a page of approved doodles in the given order and the
// total number of approved doodles.
func (pg *Postgres) ListApproved(ctx context.Context, sort gallery.Sort, limit, offset int) ([]gallery.Doodle, int, error) {
	var rows []doodle
	q := pg.bun.NewSelect().
		Model(&rows).
		Where("moderation_status = ?", gallery.StatusApproved)

	switch sort {
	case gallery.SortPopular:
		q = q.OrderExpr("like_count + love_count + fire_count + laugh_count DESC").Order("created_at DESC")
	case gallery.SortFeatured:
		q = q.Order("is_featured DESC", "created_at DESC")
	default:
		q = q.Order("created_at DESC")
	}

	total, err := q.Limit(limit).Offset(offset).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("scan: %w", err)
	}
	out := make([]gallery.Doodle, len(rows))
	for i, m := range rows {
		out[i] = m.APIDoodle()
	}
	return out, total, nil
}

// ListFeatured returns the most recent featured approved doodles.
func (pg *Postgres) ListFeatured(ctx context.Context, limit int) ([]gallery.Doodle, error) {
	var rows []doodle
	if err := pg.bun.NewSelect().
		Model(&rows).
		Where("is_featured = true").
		Where("moderation_status = ?", gallery.StatusApproved).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	out := make([]gallery.Doodle, len(rows))
	for i, m := range rows {
		out[i] = m.APIDoodle()
	}
	return out, nil
}

// Stats aggregates the approved doodles.
func (pg *Postgres) Stats(ctx context.Context) (gallery.Stats, error) {
	var s struct {
		TotalDoodles   int
		UniqueArtists  int
		TotalReactions int
	}
	if err := pg.bun.NewSelect().
		Model((*doodle)(nil)).
		ColumnExpr("count(*) AS total_doodles").
		ColumnExpr("count(DISTINCT session_id) AS unique_artists").
		ColumnExpr("coalesce(sum(like_count + love_count + fire_count + laugh_count), 0) AS total_reactions").
		Where("moderation_status = ?", gallery.StatusApproved).
		Scan(ctx, &s); err != nil {
		return gallery.Stats{}, fmt.Errorf("scan: %w", err)
	}
	return gallery.Stats{
		TotalDoodles:   s.TotalDoodles,
		UniqueArtists:  s.UniqueArtists,
		TotalReactions: s.TotalReactions,
	}, nil
}

// IncrementReaction adds one to the counter of kind. The update takes a row
// lock, so concurrent increments of the same doodle serialize.
func (pg *Postgres) IncrementReaction(ctx context.Context, doodleID string, kind gallery.ReactionKind) (gallery.Counts, error) {
	return increment(ctx, pg.bun, doodleID, kind)
}

func increment(ctx context.Context, db bun.IDB, doodleID string, kind gallery.ReactionKind) (gallery.Counts, error) {
	col, ok := counterColumn(kind)
	if !ok {
		return gallery.Counts{}, gallery.ErrInvalidReaction
	}
	var c counts
	err := db.NewUpdate().
		Model((*doodle)(nil)).
		Set("? = ? + 1", bun.Ident(col), bun.Ident(col)).
		Set("updated_at = now()").
		Where("id = ?", doodleID).
		Returning("like_count, love_count, fire_count, laugh_count").
		Scan(ctx, &c)
	if errors.Is(err, sql.ErrNoRows) {
		return gallery.Counts{}, gallery.ErrNotFound
	}
	if err != nil {
		return gallery.Counts{}, fmt.Errorf("update: %w", err)
	}
	return c.APICounts(), nil
}

// React records a reaction and increments the matching counter in a single
// transaction. The unique (doodle_id, ip_address, reaction_type) constraint
// decides duplicates: when the insert is skipped the increment is rolled back.
func (pg *Postgres) React(ctx context.Context, r gallery.Reaction) (gallery.Counts, error) {
	var out gallery.Counts
	err := pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		c, err := increment(ctx, tx, r.DoodleID, r.Kind)
		if err != nil {
			return err
		}

		rm := &reaction{
			ID:           r.ID,
			DoodleID:     r.DoodleID,
			ReactionType: string(r.Kind),
			IPAddress:    r.OriginAddress,
			CreatedAt:    r.CreatedAt,
		}
		res, err := tx.NewInsert().
			Model(rm).
			On("CONFLICT (doodle_id, ip_address, reaction_type) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert reaction: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return gallery.ErrAlreadyReacted
		}
		out = c
		return nil
	})
	if err != nil {
		return gallery.Counts{}, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
