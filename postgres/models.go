package postgres

import (
	"time"

	"github.com/argo/doodlewall/gallery"
)

// A doodle represents a doodle in the database.
type doodle struct {
	ID               string    `bun:",pk,type:uuid"`
	ImageURL         string    `bun:"image_url,notnull"`
	ImageHash        string    `bun:",notnull"`
	UserName         string    `bun:",type:varchar(50),notnull"`
	SessionID        string    `bun:",type:uuid,notnull"`
	WaitlistRank     int64     `bun:",type:bigserial,nullzero,notnull,unique"`
	LikeCount        int       `bun:",notnull,default:0"`
	LoveCount        int       `bun:",notnull,default:0"`
	FireCount        int       `bun:",notnull,default:0"`
	LaughCount       int       `bun:",notnull,default:0"`
	IsFeatured       bool      `bun:",notnull,default:false"`
	ModerationStatus string    `bun:",type:varchar(20),notnull,default:'pending'"`
	CreatedAt        time.Time `bun:",nullzero,notnull,default:now()"`
	UpdatedAt        time.Time `bun:",nullzero,notnull,default:now()"`
}

type reaction struct {
	ID           string    `bun:",pk,type:uuid"`
	DoodleID     string    `bun:",type:uuid,notnull,unique:reactions_doodle_origin_kind"`
	ReactionType string    `bun:",type:varchar(20),notnull,unique:reactions_doodle_origin_kind"`
	IPAddress    string    `bun:"ip_address,notnull,unique:reactions_doodle_origin_kind"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:now()"`
}

// counts holds the counter columns returned by reaction updates.
type counts struct {
	LikeCount  int
	LoveCount  int
	FireCount  int
	LaughCount int
}

func (c counts) APICounts() gallery.Counts {
	return gallery.Counts{
		Like:  c.LikeCount,
		Love:  c.LoveCount,
		Fire:  c.FireCount,
		Laugh: c.LaughCount,
	}
}

func newDoodle(d gallery.Doodle) *doodle {
	return &doodle{
		ID:               d.ID,
		ImageURL:         d.ImageURL,
		ImageHash:        d.Fingerprint,
		UserName:         d.UserName,
		SessionID:        d.SessionID,
		LikeCount:        d.Reactions.Like,
		LoveCount:        d.Reactions.Love,
		FireCount:        d.Reactions.Fire,
		LaughCount:       d.Reactions.Laugh,
		IsFeatured:       d.Featured,
		ModerationStatus: string(d.ModerationStatus),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (m doodle) APIDoodle() gallery.Doodle {
	return gallery.Doodle{
		ID:           m.ID,
		ImageURL:     m.ImageURL,
		Fingerprint:  m.ImageHash,
		UserName:     m.UserName,
		SessionID:    m.SessionID,
		WaitlistRank: m.WaitlistRank,
		Reactions: gallery.Counts{
			Like:  m.LikeCount,
			Love:  m.LoveCount,
			Fire:  m.FireCount,
			Laugh: m.LaughCount,
		},
		Featured:         m.IsFeatured,
		ModerationStatus: gallery.ModerationStatus(m.ModerationStatus),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// counterColumn maps a reaction kind onto its counter column.
func counterColumn(kind gallery.ReactionKind) (string, bool) {
	switch kind {
	case gallery.ReactionLike:
		return "like_count", true
	case gallery.ReactionLove:
		return "love_count", true
	case gallery.ReactionFire:
		return "fire_count", true
	case gallery.ReactionLaugh:
		return "laugh_count", true
	}
	return "", false
}
