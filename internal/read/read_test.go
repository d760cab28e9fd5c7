package read

import (
	"context"
	"testing"
	"time"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

type fakeTimelineReader struct {
	timelines map[idgen.ID][]idgen.ID
	celebrity map[idgen.ID][]idgen.ID
	postCache map[idgen.ID]*models.Post
}

func (f *fakeTimelineReader) GetTimeline(_ context.Context, userID idgen.ID, before *idgen.ID, limit int) ([]idgen.ID, error) {
	ids := f.timelines[userID]
	if before != nil {
		filtered := make([]idgen.ID, 0, len(ids))
		for _, id := range ids {
			if id.Timestamp() < before.Timestamp() {
				filtered = append(filtered, id)
			}
		}
		ids = filtered
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeTimelineReader) GetCelebrityPostsBatch(_ context.Context, celebrityIDs []idgen.ID, perCelebrityLimit int) (map[idgen.ID][]idgen.ID, error) {
	out := make(map[idgen.ID][]idgen.ID, len(celebrityIDs))
	for _, id := range celebrityIDs {
		ids := f.celebrity[id]
		if len(ids) > perCelebrityLimit {
			ids = ids[:perCelebrityLimit]
		}
		out[id] = ids
	}
	return out, nil
}

func (f *fakeTimelineReader) GetCachedPosts(_ context.Context, postIDs []idgen.ID) ([]*models.Post, []idgen.ID, error) {
	posts := make([]*models.Post, 0, len(postIDs))
	var missing []idgen.ID
	for _, id := range postIDs {
		if p, ok := f.postCache[id]; ok {
			posts = append(posts, p)
		} else {
			missing = append(missing, id)
		}
	}
	return posts, missing, nil
}

func (f *fakeTimelineReader) CachePostsBatch(_ context.Context, posts []*models.Post) error {
	if f.postCache == nil {
		f.postCache = make(map[idgen.ID]*models.Post)
	}
	for _, p := range posts {
		f.postCache[p.ID] = p
	}
	return nil
}

type fakePostLookup struct {
	byID     map[idgen.ID]*models.Post
	byAuthor map[idgen.ID][]*models.Post
}

func (f *fakePostLookup) GetByIDs(_ context.Context, ids []idgen.ID) ([]*models.Post, error) {
	posts := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (f *fakePostLookup) GetByAuthor(_ context.Context, authorID idgen.ID, beforeID *idgen.ID, limit int) ([]*models.Post, error) {
	posts := f.byAuthor[authorID]
	out := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if beforeID != nil && p.ID.Compare(*beforeID) >= 0 {
			continue
		}
		out = append(out, p)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRecentByAuthors serves the same byAuthor fixture data as GetByAuthor,
// used by tests that exercise the cold-celebrity-cache Postgres fallback.
func (f *fakePostLookup) GetRecentByAuthors(_ context.Context, authorIDs []idgen.ID, perAuthorLimit, totalLimit int) ([]*models.Post, error) {
	var out []*models.Post
	for _, authorID := range authorIDs {
		posts := f.byAuthor[authorID]
		if len(posts) > perAuthorLimit {
			posts = posts[:perAuthorLimit]
		}
		out = append(out, posts...)
	}
	if len(out) > totalLimit {
		out = out[:totalLimit]
	}
	return out, nil
}

type fakeCelebrityFollowLookup struct {
	celebrities map[idgen.ID][]*models.User
}

func (f *fakeCelebrityFollowLookup) GetFollowingCelebrities(_ context.Context, userID idgen.ID, _ int) ([]*models.User, error) {
	return f.celebrities[userID], nil
}

func genIDAt(t time.Time) idgen.ID {
	return idgen.GenerateAt(t)
}

func TestGetTimelineMergesCacheAndCelebrityFanIn(t *testing.T) {
	reader := idgen.Generate()
	regularAuthor := idgen.Generate()
	celeb := idgen.Generate()

	base := time.Now().Add(-time.Hour)
	cachedPost := &models.Post{ID: genIDAt(base.Add(2 * time.Minute)), AuthorID: regularAuthor}
	celebPost := &models.Post{ID: genIDAt(base.Add(3 * time.Minute)), AuthorID: celeb}

	timelines := &fakeTimelineReader{timelines: map[idgen.ID][]idgen.ID{
		reader: {cachedPost.ID},
	}}
	posts := &fakePostLookup{
		byID:     map[idgen.ID]*models.Post{cachedPost.ID: cachedPost},
		byAuthor: map[idgen.ID][]*models.Post{celeb: {celebPost}},
	}
	follows := &fakeCelebrityFollowLookup{celebrities: map[idgen.ID][]*models.User{
		reader: {{ID: celeb, FollowerCount: 50000}},
	}}

	svc := New(timelines, posts, follows, DefaultConfig())

	page, err := svc.GetTimeline(context.Background(), reader, "", 10)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("GetTimeline returned %d posts, want 2", len(page.Posts))
	}
	if page.Posts[0].ID != celebPost.ID || page.Posts[1].ID != cachedPost.ID {
		t.Error("GetTimeline must sort merged posts strictly descending by id")
	}
}

func TestGetTimelineExcludesReadersOwnPosts(t *testing.T) {
	reader := idgen.Generate()
	ownPost := &models.Post{ID: idgen.Generate(), AuthorID: reader}

	timelines := &fakeTimelineReader{timelines: map[idgen.ID][]idgen.ID{
		reader: {ownPost.ID},
	}}
	posts := &fakePostLookup{byID: map[idgen.ID]*models.Post{ownPost.ID: ownPost}}
	follows := &fakeCelebrityFollowLookup{}

	svc := New(timelines, posts, follows, DefaultConfig())

	page, err := svc.GetTimeline(context.Background(), reader, "", 10)
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if len(page.Posts) != 0 {
		t.Errorf("GetTimeline must never include the reader's own posts, got %v", page.Posts)
	}
}

func TestGetTimelinePaginatesWithCursor(t *testing.T) {
	reader := idgen.Generate()
	author := idgen.Generate()

	base := time.Now().Add(-time.Hour)
	var ids []idgen.ID
	byID := map[idgen.ID]*models.Post{}
	for i := 0; i < 5; i++ {
		id := genIDAt(base.Add(time.Duration(i) * time.Minute))
		ids = append(ids, id)
		byID[id] = &models.Post{ID: id, AuthorID: author}
	}
	// timeline cache returns most-recent first
	reversed := make([]idgen.ID, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}

	timelines := &fakeTimelineReader{timelines: map[idgen.ID][]idgen.ID{reader: reversed}}
	posts := &fakePostLookup{byID: byID}
	follows := &fakeCelebrityFollowLookup{}

	svc := New(timelines, posts, follows, DefaultConfig())

	page1, err := svc.GetTimeline(context.Background(), reader, "", 2)
	if err != nil {
		t.Fatalf("GetTimeline page1: %v", err)
	}
	if len(page1.Posts) != 2 || !page1.HasMore {
		t.Fatalf("page1 = %+v, want 2 posts and hasMore=true", page1)
	}

	page2, err := svc.GetTimeline(context.Background(), reader, page1.NextCursor, 2)
	if err != nil {
		t.Fatalf("GetTimeline page2: %v", err)
	}
	if len(page2.Posts) != 2 || !page2.HasMore {
		t.Fatalf("page2 = %+v, want 2 posts and hasMore=true", page2)
	}

	page3, err := svc.GetTimeline(context.Background(), reader, page2.NextCursor, 2)
	if err != nil {
		t.Fatalf("GetTimeline page3: %v", err)
	}
	if len(page3.Posts) != 1 || page3.HasMore {
		t.Fatalf("page3 = %+v, want 1 post and hasMore=false", page3)
	}

	seen := map[idgen.ID]bool{}
	for _, p := range append(append(page1.Posts, page2.Posts...), page3.Posts...) {
		if seen[p.ID] {
			t.Errorf("post %s returned twice across pages", p.ID)
		}
		seen[p.ID] = true
	}
	if len(seen) != 5 {
		t.Errorf("concatenated pages covered %d posts, want 5", len(seen))
	}
}

func TestGetTimelineInvalidCursorFallsBackToFirstPage(t *testing.T) {
	reader := idgen.Generate()
	post := &models.Post{ID: idgen.Generate(), AuthorID: idgen.Generate()}

	timelines := &fakeTimelineReader{timelines: map[idgen.ID][]idgen.ID{reader: {post.ID}}}
	posts := &fakePostLookup{byID: map[idgen.ID]*models.Post{post.ID: post}}
	follows := &fakeCelebrityFollowLookup{}

	svc := New(timelines, posts, follows, DefaultConfig())

	page, err := svc.GetTimeline(context.Background(), reader, "not a valid cursor!!", 10)
	if err != nil {
		t.Fatalf("GetTimeline with garbage cursor must not error: %v", err)
	}
	if len(page.Posts) != 1 {
		t.Errorf("garbage cursor must be treated as no cursor, got %d posts", len(page.Posts))
	}
}

func TestGetUserPostsPaginatesByPostID(t *testing.T) {
	author := idgen.Generate()
	base := time.Now().Add(-time.Hour)

	var byAuthor []*models.Post
	for i := 0; i < 3; i++ {
		id := genIDAt(base.Add(time.Duration(i) * time.Minute))
		byAuthor = append([]*models.Post{{ID: id, AuthorID: author}}, byAuthor...)
	}

	posts := &fakePostLookup{byAuthor: map[idgen.ID][]*models.Post{author: byAuthor}}
	svc := New(&fakeTimelineReader{}, posts, &fakeCelebrityFollowLookup{}, DefaultConfig())

	page, err := svc.GetUserPosts(context.Background(), author, "", 2)
	if err != nil {
		t.Fatalf("GetUserPosts: %v", err)
	}
	if len(page.Posts) != 2 || !page.HasMore {
		t.Fatalf("page = %+v, want 2 posts and hasMore=true", page)
	}
}
