package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

const (
	timelineKeyPrefix  = "timeline:"
	celebrityKeyPrefix = "celebrity:"
	postCacheKeyPrefix = "post:"

	postCacheTTL     = 24 * time.Hour
	timelineCacheTTL = 7 * 24 * time.Hour

	celebrityCacheCap = 200
)

// TimelineCache is the sorted-set backed materialized-timeline cache.
// Each member is a post id; the score is the millisecond timestamp
// embedded in that id, so ZREVRANGE order matches chronological order
// without a separately stored timestamp.
type TimelineCache struct {
	client  *redis.Client
	maxSize int
}

// NewTimelineCache creates a TimelineCache capped at maxSize entries per
// user timeline.
func NewTimelineCache(client *redis.Client, maxSize int) *TimelineCache {
	return &TimelineCache{client: client, maxSize: maxSize}
}

func timelineKey(userID idgen.ID) string {
	return timelineKeyPrefix + userID.String()
}

func celebrityKey(userID idgen.ID) string {
	return celebrityKeyPrefix + userID.String()
}

func postCacheKey(postID idgen.ID) string {
	return postCacheKeyPrefix + postID.String()
}

func score(id idgen.ID) float64 {
	return float64(id.Timestamp())
}

// AddToTimeline adds a single post to one user's timeline, trims it back
// down to maxSize, and refreshes its TTL.
func (tc *TimelineCache) AddToTimeline(ctx context.Context, userID, postID idgen.ID) error {
	key := timelineKey(userID)
	pipe := tc.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score(postID), Member: postID.String()})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-tc.maxSize-1))
	pipe.Expire(ctx, key, timelineCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add to timeline: %w", err)
	}
	return nil
}

// AddToTimelineBatch fans a single post out to many users' timelines in one
// round trip.
func (tc *TimelineCache) AddToTimelineBatch(ctx context.Context, userIDs []idgen.ID, postID idgen.ID) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := tc.client.Pipeline()
	for _, userID := range userIDs {
		key := timelineKey(userID)
		pipe.ZAdd(ctx, key, redis.Z{Score: score(postID), Member: postID.String()})
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-tc.maxSize-1))
		pipe.Expire(ctx, key, timelineCacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch add to timelines: %w", err)
	}
	return nil
}

// GetTimeline returns post ids from a user's timeline, most recent first,
// continuing before the given cursor id if one is supplied.
func (tc *TimelineCache) GetTimeline(ctx context.Context, userID idgen.ID, before *idgen.ID, limit int) ([]idgen.ID, error) {
	key := timelineKey(userID)
	max := "+inf"
	if before != nil {
		max = fmt.Sprintf("(%d", before.Timestamp())
	}
	results, err := tc.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    max,
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}
	return parseIDs(results), nil
}

// RemoveManyFromTimeline removes several posts at once, used to purge a
// followee's posts from a follower's timeline on unfollow.
func (tc *TimelineCache) RemoveManyFromTimeline(ctx context.Context, userID idgen.ID, postIDs []idgen.ID) error {
	if len(postIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(postIDs))
	for i, id := range postIDs {
		members[i] = id.String()
	}
	if err := tc.client.ZRem(ctx, timelineKey(userID), members...).Err(); err != nil {
		return fmt.Errorf("remove many from timeline: %w", err)
	}
	return nil
}

// ClearTimeline deletes a user's entire cached timeline.
func (tc *TimelineCache) ClearTimeline(ctx context.Context, userID idgen.ID) error {
	return tc.client.Del(ctx, timelineKey(userID)).Err()
}

// AddCelebrityPost records a celebrity's post in their own recent-posts
// sorted set, read at fan-out time instead of pushed to every follower.
func (tc *TimelineCache) AddCelebrityPost(ctx context.Context, celebrityID, postID idgen.ID) error {
	key := celebrityKey(celebrityID)
	pipe := tc.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score(postID), Member: postID.String()})
	pipe.ZRemRangeByRank(ctx, key, 0, -celebrityCacheCap-1)
	pipe.Expire(ctx, key, timelineCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add celebrity post: %w", err)
	}
	return nil
}

// GetCelebrityPostsBatch returns each celebrity's recent post ids in one
// round trip, keyed by celebrity id. A celebrity absent from its own cache
// set (never posted since the cache was last empty, or evicted) comes back
// with an empty slice rather than an error, so the caller can tell "no
// cached posts" apart from "no celebrities requested" and fall back to
// Postgres only for the ones that are actually cold.
func (tc *TimelineCache) GetCelebrityPostsBatch(ctx context.Context, celebrityIDs []idgen.ID, perCelebrityLimit int) (map[idgen.ID][]idgen.ID, error) {
	if len(celebrityIDs) == 0 {
		return map[idgen.ID][]idgen.ID{}, nil
	}
	pipe := tc.client.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(celebrityIDs))
	for i, id := range celebrityIDs {
		cmds[i] = pipe.ZRevRange(ctx, celebrityKey(id), 0, int64(perCelebrityLimit-1))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get celebrity posts batch: %w", err)
	}
	out := make(map[idgen.ID][]idgen.ID, len(celebrityIDs))
	for i, cmd := range cmds {
		results, err := cmd.Result()
		if err != nil {
			continue
		}
		out[celebrityIDs[i]] = parseIDs(results)
	}
	return out, nil
}

// CachePost stores a post's full data for GetCachedPosts to retrieve
// without a DB round trip.
func (tc *TimelineCache) CachePost(ctx context.Context, post *models.Post) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	return tc.client.Set(ctx, postCacheKey(post.ID), data, postCacheTTL).Err()
}

// CachePostsBatch stores several posts at once.
func (tc *TimelineCache) CachePostsBatch(ctx context.Context, posts []*models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	pipe := tc.client.Pipeline()
	for _, post := range posts {
		data, err := json.Marshal(post)
		if err != nil {
			continue
		}
		pipe.Set(ctx, postCacheKey(post.ID), data, postCacheTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// GetCachedPosts retrieves cached posts for the given ids, returning
// separately the ids that were not found so the caller can fall back to
// Postgres for those.
func (tc *TimelineCache) GetCachedPosts(ctx context.Context, postIDs []idgen.ID) ([]*models.Post, []idgen.ID, error) {
	if len(postIDs) == 0 {
		return []*models.Post{}, []idgen.ID{}, nil
	}

	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = postCacheKey(id)
	}

	results, err := tc.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("get cached posts: %w", err)
	}

	posts := make([]*models.Post, 0, len(postIDs))
	missing := make([]idgen.ID, 0)

	for i, result := range results {
		if result == nil {
			missing = append(missing, postIDs[i])
			continue
		}
		data, ok := result.(string)
		if !ok {
			missing = append(missing, postIDs[i])
			continue
		}
		post := &models.Post{}
		if err := json.Unmarshal([]byte(data), post); err != nil {
			missing = append(missing, postIDs[i])
			continue
		}
		posts = append(posts, post)
	}

	return posts, missing, nil
}

func parseIDs(members []string) []idgen.ID {
	out := make([]idgen.ID, 0, len(members))
	for _, m := range members {
		id, err := idgen.Parse(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
