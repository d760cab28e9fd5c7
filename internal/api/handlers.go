package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dtambussi/fanout/internal/apperr"
	"github.com/dtambussi/fanout/internal/cache"
	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
	"github.com/dtambussi/fanout/internal/read"
	"github.com/dtambussi/fanout/internal/repository"
	"github.com/dtambussi/fanout/internal/write"
)

// Config tunes pagination defaults shared by every list endpoint.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Handler holds every dependency the HTTP surface needs: the two write/read
// services plus direct repository/cache access for the demo endpoints,
// which operate below the level of a single domain operation.
type Handler struct {
	write       *write.Services
	read        *read.Service
	users       *repository.UserStore
	posts       *repository.PostStore
	follows     *repository.FollowStore
	outbox      *repository.OutboxStore
	cache       *cache.TimelineCache
	redisClient *redis.Client
	cfg         Config
}

// NewHandler builds a Handler. redisClient is kept alongside the
// TimelineCache it backs only for demo-reset's FlushAll call, which operates
// on the whole Redis instance rather than one user's sorted set.
func NewHandler(
	writeSvc *write.Services,
	readSvc *read.Service,
	users *repository.UserStore,
	posts *repository.PostStore,
	follows *repository.FollowStore,
	outbox *repository.OutboxStore,
	timelineCache *cache.TimelineCache,
	redisClient *redis.Client,
	cfg Config,
) *Handler {
	return &Handler{
		write:       writeSvc,
		read:        readSvc,
		users:       users,
		posts:       posts,
		follows:     follows,
		outbox:      outbox,
		cache:       timelineCache,
		redisClient: redisClient,
		cfg:         cfg,
	}
}

// HealthCheck handles GET /actuator/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createPostRequest struct {
	Content string `json:"content"`
}

// CreatePost handles POST /api/v1/posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())

	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.New(apperr.CodeBadRequest, "request body must be valid JSON"))
		return
	}

	post, err := h.write.CreatePost(r.Context(), caller, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// GetUserPosts handles GET /api/v1/users/{id}/posts.
func (h *Handler) GetUserPosts(w http.ResponseWriter, r *http.Request) {
	authorID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := h.parseLimit(r)

	page, err := h.read.GetUserPosts(r.Context(), authorID, cursor, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, page.Posts, page.NextCursor, page.HasMore)
}

// GetTimeline handles GET /api/v1/users/{id}/timeline.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	pathID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := requireCaller(r.Context(), pathID); err != nil {
		writeError(w, r, err)
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := h.parseLimit(r)

	page, err := h.read.GetTimeline(r.Context(), pathID, cursor, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePage(w, page.Posts, page.NextCursor, page.HasMore)
}

type followResponse struct {
	FollowerID idgen.ID `json:"followerId"`
	FolloweeID idgen.ID `json:"followeeId"`
}

// Follow handles POST /api/v1/users/{id}/follow/{target}.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	followerID, followeeID, err := h.parseFollowPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.write.Follow(r.Context(), followerID, followeeID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, followResponse{FollowerID: followerID, FolloweeID: followeeID})
}

// Unfollow handles DELETE /api/v1/users/{id}/follow/{target}.
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	followerID, followeeID, err := h.parseFollowPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.write.Unfollow(r.Context(), followerID, followeeID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followResponse{FollowerID: followerID, FolloweeID: followeeID})
}

// GetFollowing handles GET /api/v1/users/{id}/following. Unlike the
// post/timeline cursors (base64 of a canonical id), follow-listing cursors
// are ISO-8601 instants naming the last edge's created_at.
func (h *Handler) GetFollowing(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	before := parseInstantCursor(r.URL.Query().Get("cursor"))
	limit := h.parseLimit(r)

	edges, err := h.follows.GetFollowing(r.Context(), userID, before, limit+1)
	if err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	hasMore := len(edges) > limit
	if hasMore {
		edges = edges[:limit]
	}
	ids := make([]idgen.ID, len(edges))
	for i, e := range edges {
		ids[i] = e.FolloweeID
	}
	writePage(w, ids, instantCursor(edges, hasMore), hasMore)
}

// GetFollowers handles GET /api/v1/users/{id}/followers.
func (h *Handler) GetFollowers(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	before := parseInstantCursor(r.URL.Query().Get("cursor"))
	limit := h.parseLimit(r)

	edges, err := h.follows.GetFollowersPage(r.Context(), userID, before, limit+1)
	if err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	hasMore := len(edges) > limit
	if hasMore {
		edges = edges[:limit]
	}
	ids := make([]idgen.ID, len(edges))
	for i, e := range edges {
		ids[i] = e.FollowerID
	}
	writePage(w, ids, instantCursor(edges, hasMore), hasMore)
}

type statsResponse struct {
	Users             int `json:"users"`
	Celebrities       int `json:"celebrities"`
	Posts             int `json:"posts"`
	Follows           int `json:"follows"`
	UnprocessedOutbox int `json:"unprocessedOutbox"`
}

// DemoStats handles GET /api/v1/demo/stats.
func (h *Handler) DemoStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := statsResponse{}

	var err error
	if stats.Users, err = h.users.Count(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if stats.Celebrities, err = h.users.CountCelebrities(ctx, defaultCelebrityThreshold); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if stats.Posts, err = h.posts.Count(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if stats.Follows, err = h.follows.Count(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if stats.UnprocessedOutbox, err = h.outbox.CountUnprocessed(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// DemoReset handles POST /api/v1/demo/reset: wipes every relational table
// and the entire cache, returning the counts that were cleared.
func (h *Handler) DemoReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	before := statsResponse{}

	var err error
	if before.Users, err = h.users.Count(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if before.Posts, err = h.posts.Count(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if before.Follows, err = h.follows.Count(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	// follows/posts reference users and their Truncates (like the users one)
	// use CASCADE, while the outbox has no foreign keys, so any order is
	// safe; truncating users last keeps the leaf-tables-first order readable.
	if err := h.outbox.Truncate(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if err := h.follows.Truncate(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if err := h.posts.Truncate(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if err := h.users.Truncate(ctx); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	if err := cache.FlushAll(ctx, h.redisClient); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": before,
	})
}

// --- helpers ---

// defaultCelebrityThreshold mirrors the materializer/read default; a demo
// stats count is informational only and does not need to track a per-request
// caller's configured threshold.
const defaultCelebrityThreshold = 10000

func parseIDParam(r *http.Request, name string) (idgen.ID, error) {
	raw := chi.URLParam(r, name)
	id, err := idgen.Parse(raw)
	if err != nil {
		return idgen.Zero, apperr.New(apperr.CodeUserIDInvalidFormat, "path id is not a valid id")
	}
	return id, nil
}

func (h *Handler) parseFollowPath(r *http.Request) (followerID, followeeID idgen.ID, err error) {
	followerID, err = parseIDParam(r, "id")
	if err != nil {
		return idgen.Zero, idgen.Zero, err
	}
	followeeID, err = parseIDParam(r, "target")
	if err != nil {
		return idgen.Zero, idgen.Zero, err
	}
	if rerr := requireCaller(r.Context(), followerID); rerr != nil {
		return idgen.Zero, idgen.Zero, rerr
	}
	return followerID, followeeID, nil
}

// requireCaller enforces that pathID names the authenticated caller, the
// 403-id-not-caller rule shared by follow/unfollow/timeline.
func requireCaller(ctx context.Context, pathID idgen.ID) error {
	if callerFromContext(ctx) != pathID {
		return apperr.New(apperr.CodeForbidden, "path id must match the authenticated caller")
	}
	return nil
}

// parseLimit reads the "limit" query parameter, clamping it into
// [1, MaxPageSize] and defaulting to DefaultPageSize when absent or invalid.
func (h *Handler) parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.cfg.DefaultPageSize
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return h.cfg.DefaultPageSize
	}
	if n > h.cfg.MaxPageSize {
		return h.cfg.MaxPageSize
	}
	return n
}

// instantCursor returns the ISO-8601 nextCursor for a follow listing page:
// the last edge's created_at, or empty when there is no further page.
func instantCursor(edges []models.Follow, hasMore bool) string {
	if !hasMore || len(edges) == 0 {
		return ""
	}
	return edges[len(edges)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
}

// parseInstantCursor decodes a follow-listing cursor. A missing or
// malformed cursor is treated as "no cursor", the same silent-fallback
// contract the post/timeline cursors use.
func parseInstantCursor(cursor string) *time.Time {
	if cursor == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		return nil
	}
	return &t
}
