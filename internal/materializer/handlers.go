package materializer

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/logging"
	"github.com/dtambussi/fanout/internal/models"
)

// Config tunes the materialization policy.
type Config struct {
	CelebrityThreshold int
	// BackfillPerAuthorLimit caps how many of a newly-followed author's
	// recent posts are copied into the follower's timeline.
	BackfillPerAuthorLimit int
}

// DefaultConfig matches the write/read path's default celebrity cutoff and
// per-reader timeline cap.
func DefaultConfig() Config {
	return Config{
		CelebrityThreshold:     10000,
		BackfillPerAuthorLimit: 800,
	}
}

// UserLookup is the subset of repository.UserStore the materializer needs.
type UserLookup interface {
	GetByID(ctx context.Context, id idgen.ID) (*models.User, error)
}

// PostLookup is the subset of repository.PostStore the materializer needs.
type PostLookup interface {
	GetByAuthor(ctx context.Context, authorID idgen.ID, beforeID *idgen.ID, limit int) ([]*models.Post, error)
}

// FollowerLookup is the subset of repository.FollowStore the materializer
// needs.
type FollowerLookup interface {
	GetFollowers(ctx context.Context, userID idgen.ID) ([]idgen.ID, error)
}

// TimelineWriter is the subset of cache.TimelineCache the materializer
// writes through.
type TimelineWriter interface {
	AddToTimeline(ctx context.Context, userID, postID idgen.ID) error
	AddToTimelineBatch(ctx context.Context, userIDs []idgen.ID, postID idgen.ID) error
	AddCelebrityPost(ctx context.Context, celebrityID, postID idgen.ID) error
	RemoveManyFromTimeline(ctx context.Context, userID idgen.ID, postIDs []idgen.ID) error
	CachePost(ctx context.Context, post *models.Post) error
}

// Materializer applies domain events to the timeline cache. Every handler
// method always returns a nil error: a failed event is logged and the
// message is acked anyway, since there is no dead-letter sink to route a
// permanently-failing event to. Re-delivery of an already-applied event is
// safe because every cache mutation here (ZADD, ZREM) is idempotent.
type Materializer struct {
	users   UserLookup
	posts   PostLookup
	follows FollowerLookup
	cache   TimelineWriter
	cfg     Config
}

// New builds a Materializer.
func New(users UserLookup, posts PostLookup, follows FollowerLookup, timelineCache TimelineWriter, cfg Config) *Materializer {
	return &Materializer{users: users, posts: posts, follows: follows, cache: timelineCache, cfg: cfg}
}

// HandlePostCreated fans a new post out to its author's followers (regular
// authors) or records it in the celebrity recent-posts set (celebrity
// authors), per the hybrid policy. Never touches the author's own timeline:
// a user never sees their own posts injected back into their home feed.
func (m *Materializer) HandlePostCreated(msg *message.Message) ([]*message.Message, error) {
	ctx := msg.Context()
	log := logging.FromContext(ctx)

	var payload models.PostCreatedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Error().Err(err).Msg("discarding post_created event: invalid payload")
		return nil, nil
	}

	author, err := m.users.GetByID(ctx, payload.AuthorID)
	if err != nil {
		log.Error().Err(err).Str("author_id", payload.AuthorID.String()).Msg("post_created: failed to load author")
		return nil, nil
	}

	post := &models.Post{
		ID:             payload.PostID,
		AuthorID:       payload.AuthorID,
		Content:        payload.Content,
		CreatedAt:      payload.CreatedAt,
		AuthorUsername: author.Username,
	}
	if err := m.cache.CachePost(ctx, post); err != nil {
		log.Error().Err(err).Str("post_id", post.ID.String()).Msg("post_created: failed to warm post cache")
	}

	if author.IsCelebrity(m.cfg.CelebrityThreshold) {
		if err := m.cache.AddCelebrityPost(ctx, author.ID, payload.PostID); err != nil {
			log.Error().Err(err).Msg("post_created: failed to record celebrity post")
			return nil, nil
		}
		log.Debug().
			Str("author_id", author.ID.String()).
			Str("post_id", payload.PostID.String()).
			Msg("celebrity post recorded for fan-out-on-read")
		return nil, nil
	}

	followers, err := m.follows.GetFollowers(ctx, author.ID)
	if err != nil {
		log.Error().Err(err).Str("author_id", author.ID.String()).Msg("post_created: failed to load followers")
		return nil, nil
	}
	if len(followers) == 0 {
		return nil, nil
	}

	if err := m.cache.AddToTimelineBatch(ctx, followers, payload.PostID); err != nil {
		log.Error().Err(err).Str("post_id", payload.PostID.String()).Msg("post_created: fan-out failed")
		return nil, nil
	}

	log.Debug().
		Str("author_id", author.ID.String()).
		Str("post_id", payload.PostID.String()).
		Int("fan_out_count", len(followers)).
		Msg("post fanned out on write")

	return nil, nil
}

// HandleUserFollowed backfills the follower's cached timeline with the
// followee's recent posts, bounded by the timeline cap. This runs even when
// the followee is a celebrity: the one-time backfill is cheap, while
// ongoing fan-out-on-write for a celebrity's future posts is not — so only
// the future posts switch to fan-out-on-read.
func (m *Materializer) HandleUserFollowed(msg *message.Message) ([]*message.Message, error) {
	ctx := msg.Context()
	log := logging.FromContext(ctx)

	var payload models.UserFollowedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Error().Err(err).Msg("discarding user_followed event: invalid payload")
		return nil, nil
	}

	recent, err := m.posts.GetByAuthor(ctx, payload.FolloweeID, nil, m.cfg.BackfillPerAuthorLimit)
	if err != nil {
		log.Error().Err(err).Str("followee_id", payload.FolloweeID.String()).Msg("user_followed: failed to load recent posts")
		return nil, nil
	}
	if len(recent) == 0 {
		return nil, nil
	}

	for _, post := range recent {
		if err := m.cache.AddToTimeline(ctx, payload.FollowerID, post.ID); err != nil {
			log.Error().Err(err).Str("post_id", post.ID.String()).Msg("user_followed: backfill write failed")
			return nil, nil
		}
	}

	log.Debug().
		Str("follower_id", payload.FollowerID.String()).
		Str("followee_id", payload.FolloweeID.String()).
		Int("backfilled", len(recent)).
		Msg("timeline backfilled on follow")

	return nil, nil
}

// HandleUserUnfollowed purges the unfollowed author's posts from the
// follower's cached timeline — the same bounded set HandleUserFollowed
// would have backfilled, regardless of the author's celebrity status, so
// an unfollow always undoes exactly what the matching follow did.
func (m *Materializer) HandleUserUnfollowed(msg *message.Message) ([]*message.Message, error) {
	ctx := msg.Context()
	log := logging.FromContext(ctx)

	var payload models.UserUnfollowedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Error().Err(err).Msg("discarding user_unfollowed event: invalid payload")
		return nil, nil
	}

	postIDs, err := m.recentPostIDs(ctx, payload.FolloweeID)
	if err != nil {
		log.Error().Err(err).Str("followee_id", payload.FolloweeID.String()).Msg("user_unfollowed: failed to load posts to purge")
		return nil, nil
	}
	if len(postIDs) == 0 {
		return nil, nil
	}

	if err := m.cache.RemoveManyFromTimeline(ctx, payload.FollowerID, postIDs); err != nil {
		log.Error().Err(err).Str("follower_id", payload.FollowerID.String()).Msg("user_unfollowed: purge failed")
		return nil, nil
	}

	log.Debug().
		Str("follower_id", payload.FollowerID.String()).
		Str("followee_id", payload.FolloweeID.String()).
		Int("purged", len(postIDs)).
		Msg("timeline purged on unfollow")

	return nil, nil
}

// recentPostIDs collects up to BackfillPerAuthorLimit of authorID's most
// recent post ids, the same set that would have been (or would be) copied
// into a follower's timeline, so an unfollow's purge mirrors a follow's
// backfill exactly.
func (m *Materializer) recentPostIDs(ctx context.Context, authorID idgen.ID) ([]idgen.ID, error) {
	posts, err := m.posts.GetByAuthor(ctx, authorID, nil, m.cfg.BackfillPerAuthorLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]idgen.ID, len(posts))
	for i, post := range posts {
		ids[i] = post.ID
	}
	return ids, nil
}
