// Package read implements the merged-timeline read path: a user's home
// feed is assembled on demand from the materialized cache (regular authors,
// fanned out on write) merged with an on-the-fly fan-in from the
// celebrities they follow (never fanned out, read at request time).
package read

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/logging"
	"github.com/dtambussi/fanout/internal/models"
)

// Config tunes the merge policy.
type Config struct {
	CelebrityThreshold int
}

// DefaultConfig matches the write/materializer path's celebrity cutoff.
func DefaultConfig() Config {
	return Config{CelebrityThreshold: 10000}
}

// TimelineReader is the subset of cache.TimelineCache the read service
// depends on: the fanned-out-on-write timeline, the fanned-out-on-read
// celebrity recent-posts sets, and the post-content cache that lets either
// be hydrated without a Postgres round trip.
type TimelineReader interface {
	GetTimeline(ctx context.Context, userID idgen.ID, before *idgen.ID, limit int) ([]idgen.ID, error)
	GetCelebrityPostsBatch(ctx context.Context, celebrityIDs []idgen.ID, perCelebrityLimit int) (map[idgen.ID][]idgen.ID, error)
	GetCachedPosts(ctx context.Context, postIDs []idgen.ID) ([]*models.Post, []idgen.ID, error)
	CachePostsBatch(ctx context.Context, posts []*models.Post) error
}

// PostLookup is the subset of repository.PostStore the read service
// depends on.
type PostLookup interface {
	GetByIDs(ctx context.Context, ids []idgen.ID) ([]*models.Post, error)
	GetByAuthor(ctx context.Context, authorID idgen.ID, beforeID *idgen.ID, limit int) ([]*models.Post, error)
	// GetRecentByAuthors is the Postgres fallback for celebrities whose
	// recent-posts cache set is cold (never populated, or evicted).
	GetRecentByAuthors(ctx context.Context, authorIDs []idgen.ID, perAuthorLimit, totalLimit int) ([]*models.Post, error)
}

// CelebrityFollowLookup is the subset of repository.FollowStore the read
// service depends on.
type CelebrityFollowLookup interface {
	GetFollowingCelebrities(ctx context.Context, userID idgen.ID, threshold int) ([]*models.User, error)
}

// Service implements getTimeline and getUserPosts.
type Service struct {
	cache   TimelineReader
	posts   PostLookup
	follows CelebrityFollowLookup
	cfg     Config
}

// New builds a Service.
func New(cache TimelineReader, posts PostLookup, follows CelebrityFollowLookup, cfg Config) *Service {
	return &Service{cache: cache, posts: posts, follows: follows, cfg: cfg}
}

// Page is one page of a cursor-paginated post listing.
type Page struct {
	Posts      []*models.Post `json:"posts"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
}

// GetTimeline returns reader's merged home feed: the materialized cache
// (regular authors, already fanned out on write) merged with an on-demand
// fan-in of posts from celebrities reader follows. The reader's own posts
// never appear, matching the write path never fanning a post out to its
// own author.
func (s *Service) GetTimeline(ctx context.Context, reader idgen.ID, cursor string, limit int) (*Page, error) {
	cursorID, hasCursor := decodeCursor(cursor)

	var before *idgen.ID
	var maxScore int64
	if hasCursor {
		before = &cursorID
		maxScore = cursorID.Timestamp()
	}

	cachedIDs, err := s.cache.GetTimeline(ctx, reader, before, limit+1)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("read cached timeline: %w", err))
	}

	celebrities, err := s.follows.GetFollowingCelebrities(ctx, reader, s.cfg.CelebrityThreshold)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load followed celebrities: %w", err))
	}
	celebrityIDs := make([]idgen.ID, len(celebrities))
	for i, celeb := range celebrities {
		celebrityIDs[i] = celeb.ID
	}

	celebCacheHits, err := s.cache.GetCelebrityPostsBatch(ctx, celebrityIDs, limit)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("read celebrity post cache: %w", err))
	}

	var warmIDs []idgen.ID
	var coldCelebrityIDs []idgen.ID
	for _, celebID := range celebrityIDs {
		if ids := celebCacheHits[celebID]; len(ids) > 0 {
			warmIDs = append(warmIDs, ids...)
		} else {
			coldCelebrityIDs = append(coldCelebrityIDs, celebID)
		}
	}

	merged := make(map[idgen.ID]*models.Post, len(cachedIDs)+len(warmIDs))
	if err := s.hydrate(ctx, cachedIDs, merged); err != nil {
		return nil, apperr.Internal(fmt.Errorf("hydrate cached timeline: %w", err))
	}
	if err := s.hydrate(ctx, warmIDs, merged); err != nil {
		return nil, apperr.Internal(fmt.Errorf("hydrate celebrity cache hits: %w", err))
	}

	if len(coldCelebrityIDs) > 0 {
		fallback, err := s.posts.GetRecentByAuthors(ctx, coldCelebrityIDs, limit, limit*len(coldCelebrityIDs))
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("fan in cold celebrities: %w", err))
		}
		for _, post := range fallback {
			merged[post.ID] = post
		}
	}

	posts := make([]*models.Post, 0, len(merged))
	for _, post := range merged {
		if post.AuthorID == reader {
			continue
		}
		if hasCursor && post.ID.Timestamp() >= maxScore {
			continue
		}
		posts = append(posts, post)
	}
	sortPostsByIDDesc(posts)

	return paginate(posts, limit), nil
}

// hydrate resolves ids to posts via the post-content cache, falling back to
// Postgres for whatever the cache doesn't have and warming the cache with
// what it fetched, then adds every resolved post into merged.
func (s *Service) hydrate(ctx context.Context, ids []idgen.ID, merged map[idgen.ID]*models.Post) error {
	if len(ids) == 0 {
		return nil
	}
	cached, missing, err := s.cache.GetCachedPosts(ctx, ids)
	if err != nil {
		return fmt.Errorf("get cached posts: %w", err)
	}
	for _, post := range cached {
		merged[post.ID] = post
	}
	if len(missing) == 0 {
		return nil
	}
	fetched, err := s.posts.GetByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("get posts by id: %w", err)
	}
	for _, post := range fetched {
		merged[post.ID] = post
	}
	if err := s.cache.CachePostsBatch(ctx, fetched); err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("failed to warm post content cache")
	}
	return nil
}

// GetUserPosts returns a direct paginated scan of author's own posts, most
// recent first.
func (s *Service) GetUserPosts(ctx context.Context, author idgen.ID, cursor string, limit int) (*Page, error) {
	cursorID, hasCursor := decodeCursor(cursor)

	var before *idgen.ID
	if hasCursor {
		before = &cursorID
	}

	posts, err := s.posts.GetByAuthor(ctx, author, before, limit+1)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get user posts: %w", err))
	}
	return paginate(posts, limit), nil
}

// paginate truncates posts (already sorted strictly descending by id) to
// limit, computing hasMore/nextCursor from the one extra row the caller
// over-fetched.
func paginate(posts []*models.Post, limit int) *Page {
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}
	page := &Page{Posts: posts, HasMore: hasMore}
	if hasMore && len(posts) > 0 {
		page.NextCursor = encodeCursor(posts[len(posts)-1].ID)
	}
	return page
}

func sortPostsByIDDesc(posts []*models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ID.Compare(posts[j].ID) > 0
	})
}

// encodeCursor renders a post id as an opaque, URL-safe pagination cursor.
func encodeCursor(id idgen.ID) string {
	return base64.URLEncoding.EncodeToString([]byte(id.String()))
}

// decodeCursor reverses encodeCursor. Any decode or parse failure is
// treated as "no cursor", per the read service's silent-invalid-cursor
// contract: a malformed cursor falls back to the first page instead of
// erroring.
func decodeCursor(cursor string) (idgen.ID, bool) {
	if cursor == "" {
		return idgen.Zero, false
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return idgen.Zero, false
	}
	id, err := idgen.Parse(string(raw))
	if err != nil {
		return idgen.Zero, false
	}
	return id, true
}
