// Package gallerytest provides in-memory implementations of the gallery
// ports for tests.
package gallerytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/argo/doodlewall/gallery"
)

// Store is an in-memory gallery.Store. It enforces the same atomicity rules
// as the database: duplicate fingerprints and reaction triples are rejected
// under a single lock.
type Store struct {
	mu        sync.Mutex
	doodles   map[string]gallery.Doodle
	reactions map[reactionKey]gallery.Reaction
	rank      int64

	// Err, when set, is returned by every method.
	Err error
	// Now defaults to time.Now.
	Now func() time.Time
}

type reactionKey struct {
	doodleID string
	origin   string
	kind     gallery.ReactionKind
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		doodles:   make(map[string]gallery.Doodle),
		reactions: make(map[reactionKey]gallery.Reaction),
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Put stores d as is, bypassing duplicate checks. It is meant for seeding.
func (s *Store) Put(d gallery.Doodle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.WaitlistRank == 0 {
		s.rank++
		d.WaitlistRank = s.rank
	}
	s.doodles[d.ID] = d
}

// Get returns the stored doodle with id.
func (s *Store) Get(id string) (gallery.Doodle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doodles[id]
	return d, ok
}

// Len returns the number of stored doodles.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.doodles)
}

func (s *Store) hasRecent(fingerprint string) bool {
	cutoff := s.now().Add(-gallery.DuplicateWindow)
	for _, d := range s.doodles {
		if d.Fingerprint == fingerprint && d.CreatedAt.After(cutoff) {
			return true
		}
	}
	return false
}

func (s *Store) CheckDuplicate(_ context.Context, fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	return s.hasRecent(fingerprint), nil
}

func (s *Store) InsertDoodle(_ context.Context, d gallery.Doodle) (gallery.Doodle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return gallery.Doodle{}, s.Err
	}
	if _, ok := s.doodles[d.ID]; ok {
		return gallery.Doodle{}, gallery.ErrConstraintViolation
	}
	if s.hasRecent(d.Fingerprint) {
		return gallery.Doodle{}, gallery.ErrDuplicateImage
	}
	s.rank++
	d.WaitlistRank = s.rank
	s.doodles[d.ID] = d
	return d, nil
}

func (s *Store) approved() []gallery.Doodle {
	out := make([]gallery.Doodle, 0, len(s.doodles))
	for _, d := range s.doodles {
		if d.ModerationStatus == gallery.StatusApproved {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) ListApproved(_ context.Context, mode gallery.Sort, limit, offset int) ([]gallery.Doodle, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, 0, s.Err
	}
	all := s.approved()
	recent := func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) }
	sort.SliceStable(all, func(i, j int) bool {
		switch mode {
		case gallery.SortPopular:
			if a, b := all[i].Reactions.Total(), all[j].Reactions.Total(); a != b {
				return a > b
			}
		case gallery.SortFeatured:
			if all[i].Featured != all[j].Featured {
				return all[i].Featured
			}
		}
		return recent(i, j)
	})

	total := len(all)
	if offset >= total {
		return []gallery.Doodle{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) ListFeatured(_ context.Context, limit int) ([]gallery.Doodle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []gallery.Doodle
	for _, d := range s.approved() {
		if d.Featured {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Stats(_ context.Context) (gallery.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return gallery.Stats{}, s.Err
	}
	sessions := make(map[string]struct{})
	var st gallery.Stats
	for _, d := range s.approved() {
		st.TotalDoodles++
		st.TotalReactions += d.Reactions.Total()
		sessions[d.SessionID] = struct{}{}
	}
	st.UniqueArtists = len(sessions)
	return st, nil
}

func (s *Store) increment(id string, kind gallery.ReactionKind) (gallery.Counts, error) {
	d, ok := s.doodles[id]
	if !ok {
		return gallery.Counts{}, gallery.ErrNotFound
	}
	switch kind {
	case gallery.ReactionLike:
		d.Reactions.Like++
	case gallery.ReactionLove:
		d.Reactions.Love++
	case gallery.ReactionFire:
		d.Reactions.Fire++
	case gallery.ReactionLaugh:
		d.Reactions.Laugh++
	default:
		return gallery.Counts{}, gallery.ErrInvalidReaction
	}
	d.UpdatedAt = s.now().UTC()
	s.doodles[id] = d
	return d.Reactions, nil
}

func (s *Store) IncrementReaction(_ context.Context, id string, kind gallery.ReactionKind) (gallery.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return gallery.Counts{}, s.Err
	}
	return s.increment(id, kind)
}

func (s *Store) React(_ context.Context, r gallery.Reaction) (gallery.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return gallery.Counts{}, s.Err
	}
	if _, ok := s.doodles[r.DoodleID]; !ok {
		return gallery.Counts{}, gallery.ErrNotFound
	}
	key := reactionKey{doodleID: r.DoodleID, origin: r.OriginAddress, kind: r.Kind}
	if _, ok := s.reactions[key]; ok {
		return gallery.Counts{}, gallery.ErrAlreadyReacted
	}
	counts, err := s.increment(r.DoodleID, r.Kind)
	if err != nil {
		return gallery.Counts{}, err
	}
	s.reactions[key] = r
	return counts, nil
}

// Cache is an in-memory gallery.Cache that ignores TTLs.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte

	// Sets and Invalidations count calls.
	Sets          int
	Invalidations int
	// Err, when set, is returned by every method.
	Err error
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string][]byte)}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	b, ok := c.entries[key]
	return b, ok, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Sets++
	c.entries[key] = value
	return nil
}

func (c *Cache) InvalidatePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Invalidations++
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReactionUpdate is a recorded Publisher.ReactionUpdated call.
type ReactionUpdate struct {
	DoodleID string
	Counts   gallery.Counts
}

// Publisher records published events.
type Publisher struct {
	mu        sync.Mutex
	created   []gallery.Doodle
	reactions []ReactionUpdate
}

func (p *Publisher) DoodleCreated(d gallery.Doodle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, d)
}

func (p *Publisher) ReactionUpdated(id string, counts gallery.Counts) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions = append(p.reactions, ReactionUpdate{DoodleID: id, Counts: counts})
}

// Created returns the doodles published so far.
func (p *Publisher) Created() []gallery.Doodle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gallery.Doodle(nil), p.created...)
}

// Reactions returns the reaction updates published so far.
func (p *Publisher) Reactions() []ReactionUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ReactionUpdate(nil), p.reactions...)
}

// Blobs is an in-memory gallery.BlobStore.
type Blobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewBlobs returns an empty Blobs.
func NewBlobs() *Blobs {
	return &Blobs{files: make(map[string][]byte)}
}

func (b *Blobs) Save(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = append([]byte(nil), data...)
	return nil
}

func (b *Blobs) Remove(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, name)
	return nil
}

// File returns the stored bytes of name.
func (b *Blobs) File(name string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[name]
	return data, ok
}

// Len returns the number of stored files.
func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.files)
}
