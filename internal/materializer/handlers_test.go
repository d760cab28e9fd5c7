package materializer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dtambussi/fanout/internal/idgen"
	"github.com/dtambussi/fanout/internal/models"
)

var errNotFound = errors.New("user not found")

// fakeUserLookup serves canned users by id.
type fakeUserLookup struct {
	users map[idgen.ID]*models.User
}

func (f *fakeUserLookup) GetByID(_ context.Context, id idgen.ID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, errNotFound
	}
	return u, nil
}

// fakePostLookup returns each author's configured posts, capped at limit.
type fakePostLookup struct {
	postsByAuthor map[idgen.ID][]*models.Post
}

func (f *fakePostLookup) GetByAuthor(_ context.Context, authorID idgen.ID, _ *idgen.ID, limit int) ([]*models.Post, error) {
	posts := f.postsByAuthor[authorID]
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// fakeFollowerLookup returns each followee's configured follower list.
type fakeFollowerLookup struct {
	followers map[idgen.ID][]idgen.ID
}

func (f *fakeFollowerLookup) GetFollowers(_ context.Context, userID idgen.ID) ([]idgen.ID, error) {
	return f.followers[userID], nil
}

// fakeTimelineWriter records every cache mutation it receives.
type fakeTimelineWriter struct {
	timelines  map[idgen.ID][]idgen.ID
	celebrity  map[idgen.ID][]idgen.ID
	cachedPost map[idgen.ID]*models.Post
}

func newFakeTimelineWriter() *fakeTimelineWriter {
	return &fakeTimelineWriter{
		timelines:  make(map[idgen.ID][]idgen.ID),
		celebrity:  make(map[idgen.ID][]idgen.ID),
		cachedPost: make(map[idgen.ID]*models.Post),
	}
}

func (f *fakeTimelineWriter) AddToTimeline(_ context.Context, userID, postID idgen.ID) error {
	f.timelines[userID] = append(f.timelines[userID], postID)
	return nil
}

func (f *fakeTimelineWriter) AddToTimelineBatch(_ context.Context, userIDs []idgen.ID, postID idgen.ID) error {
	for _, userID := range userIDs {
		f.timelines[userID] = append(f.timelines[userID], postID)
	}
	return nil
}

func (f *fakeTimelineWriter) AddCelebrityPost(_ context.Context, celebrityID, postID idgen.ID) error {
	f.celebrity[celebrityID] = append(f.celebrity[celebrityID], postID)
	return nil
}

func (f *fakeTimelineWriter) CachePost(_ context.Context, post *models.Post) error {
	f.cachedPost[post.ID] = post
	return nil
}

func (f *fakeTimelineWriter) RemoveManyFromTimeline(_ context.Context, userID idgen.ID, postIDs []idgen.ID) error {
	remove := make(map[idgen.ID]bool, len(postIDs))
	for _, id := range postIDs {
		remove[id] = true
	}
	kept := f.timelines[userID][:0]
	for _, id := range f.timelines[userID] {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	f.timelines[userID] = kept
	return nil
}

func newMessage(t *testing.T, payload interface{}) *message.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	msg := message.NewMessage("test-id", data)
	msg.SetContext(context.Background())
	return msg
}

func TestHandlePostCreatedFansOutToRegularAuthorFollowers(t *testing.T) {
	authorID := idgen.Generate()
	followerA := idgen.Generate()
	followerB := idgen.Generate()
	postID := idgen.Generate()

	users := &fakeUserLookup{users: map[idgen.ID]*models.User{
		authorID: {ID: authorID, Username: "regular-author", FollowerCount: 2},
	}}
	follows := &fakeFollowerLookup{followers: map[idgen.ID][]idgen.ID{
		authorID: {followerA, followerB},
	}}
	writer := newFakeTimelineWriter()

	m := New(users, &fakePostLookup{}, follows, writer, DefaultConfig())

	msg := newMessage(t, models.PostCreatedPayload{PostID: postID, AuthorID: authorID})
	if _, err := m.HandlePostCreated(msg); err != nil {
		t.Fatalf("HandlePostCreated: %v", err)
	}

	for _, follower := range []idgen.ID{followerA, followerB} {
		if got := writer.timelines[follower]; len(got) != 1 || got[0] != postID {
			t.Errorf("follower %s timeline = %v, want [%s]", follower, got, postID)
		}
	}
	if len(writer.timelines[authorID]) != 0 {
		t.Error("author's own timeline must not receive their own post")
	}
	if cached := writer.cachedPost[postID]; cached == nil || cached.AuthorUsername != "regular-author" {
		t.Errorf("post content cache = %v, want populated entry with author username", cached)
	}
}

func TestHandlePostCreatedRecordsCelebrityPostInsteadOfFanningOut(t *testing.T) {
	authorID := idgen.Generate()
	postID := idgen.Generate()

	users := &fakeUserLookup{users: map[idgen.ID]*models.User{
		authorID: {ID: authorID, FollowerCount: 50000},
	}}
	follows := &fakeFollowerLookup{followers: map[idgen.ID][]idgen.ID{
		authorID: {idgen.Generate()},
	}}
	writer := newFakeTimelineWriter()

	m := New(users, &fakePostLookup{}, follows, writer, DefaultConfig())

	msg := newMessage(t, models.PostCreatedPayload{PostID: postID, AuthorID: authorID})
	if _, err := m.HandlePostCreated(msg); err != nil {
		t.Fatalf("HandlePostCreated: %v", err)
	}

	if got := writer.celebrity[authorID]; len(got) != 1 || got[0] != postID {
		t.Errorf("celebrity posts = %v, want [%s]", got, postID)
	}
	if len(writer.timelines) != 0 {
		t.Error("celebrity post must not be fanned out to any follower timeline")
	}
	if _, ok := writer.cachedPost[postID]; !ok {
		t.Error("celebrity post content must still be cached so the read path's cache-then-Postgres hydration can serve it")
	}
}

func TestHandleUserFollowedBackfillsRegularAuthorPosts(t *testing.T) {
	followerID := idgen.Generate()
	followeeID := idgen.Generate()
	post1 := idgen.Generate()
	post2 := idgen.Generate()

	users := &fakeUserLookup{users: map[idgen.ID]*models.User{
		followeeID: {ID: followeeID, FollowerCount: 3},
	}}
	posts := &fakePostLookup{postsByAuthor: map[idgen.ID][]*models.Post{
		followeeID: {{ID: post1, AuthorID: followeeID}, {ID: post2, AuthorID: followeeID}},
	}}
	writer := newFakeTimelineWriter()

	m := New(users, posts, &fakeFollowerLookup{}, writer, DefaultConfig())

	msg := newMessage(t, models.UserFollowedPayload{FollowerID: followerID, FolloweeID: followeeID})
	if _, err := m.HandleUserFollowed(msg); err != nil {
		t.Fatalf("HandleUserFollowed: %v", err)
	}

	if got := writer.timelines[followerID]; len(got) != 2 {
		t.Errorf("backfilled timeline = %v, want 2 posts", got)
	}
}

func TestHandleUserFollowedBackfillsCelebrityPostsToo(t *testing.T) {
	followerID := idgen.Generate()
	followeeID := idgen.Generate()
	postID := idgen.Generate()

	users := &fakeUserLookup{users: map[idgen.ID]*models.User{
		followeeID: {ID: followeeID, FollowerCount: 100000},
	}}
	posts := &fakePostLookup{postsByAuthor: map[idgen.ID][]*models.Post{
		followeeID: {{ID: postID, AuthorID: followeeID}},
	}}
	writer := newFakeTimelineWriter()

	m := New(users, posts, &fakeFollowerLookup{}, writer, DefaultConfig())

	msg := newMessage(t, models.UserFollowedPayload{FollowerID: followerID, FolloweeID: followeeID})
	if _, err := m.HandleUserFollowed(msg); err != nil {
		t.Fatalf("HandleUserFollowed: %v", err)
	}

	if got := writer.timelines[followerID]; len(got) != 1 || got[0] != postID {
		t.Errorf("following a celebrity must still backfill their recent posts, got %v", got)
	}
}

func TestHandlePostCreatedSwallowsUnknownAuthorError(t *testing.T) {
	postID := idgen.Generate()
	unknownAuthor := idgen.Generate()

	m := New(&fakeUserLookup{users: map[idgen.ID]*models.User{}}, &fakePostLookup{}, &fakeFollowerLookup{}, newFakeTimelineWriter(), DefaultConfig())

	msg := newMessage(t, models.PostCreatedPayload{PostID: postID, AuthorID: unknownAuthor})
	if _, err := m.HandlePostCreated(msg); err != nil {
		t.Fatalf("HandlePostCreated must never return an error (log-and-ack policy), got %v", err)
	}
}

func TestHandlePostCreatedSwallowsMalformedPayload(t *testing.T) {
	m := New(&fakeUserLookup{}, &fakePostLookup{}, &fakeFollowerLookup{}, newFakeTimelineWriter(), DefaultConfig())

	msg := message.NewMessage("bad", []byte("not json"))
	msg.SetContext(context.Background())
	if _, err := m.HandlePostCreated(msg); err != nil {
		t.Fatalf("HandlePostCreated on malformed payload must still ack, got error %v", err)
	}
}

func TestHandleUserUnfollowedPurgesRegularAuthorPosts(t *testing.T) {
	followerID := idgen.Generate()
	followeeID := idgen.Generate()
	post1 := idgen.Generate()
	post2 := idgen.Generate()
	otherPost := idgen.Generate()

	users := &fakeUserLookup{users: map[idgen.ID]*models.User{
		followeeID: {ID: followeeID, FollowerCount: 3},
	}}
	posts := &fakePostLookup{postsByAuthor: map[idgen.ID][]*models.Post{
		followeeID: {{ID: post1, AuthorID: followeeID}, {ID: post2, AuthorID: followeeID}},
	}}
	writer := newFakeTimelineWriter()
	writer.timelines[followerID] = []idgen.ID{post1, post2, otherPost}

	m := New(users, posts, &fakeFollowerLookup{}, writer, DefaultConfig())

	msg := newMessage(t, models.UserUnfollowedPayload{FollowerID: followerID, FolloweeID: followeeID})
	if _, err := m.HandleUserUnfollowed(msg); err != nil {
		t.Fatalf("HandleUserUnfollowed: %v", err)
	}

	got := writer.timelines[followerID]
	if len(got) != 1 || got[0] != otherPost {
		t.Errorf("timeline after unfollow = %v, want [%s]", got, otherPost)
	}
}

func TestHandleUserUnfollowedPurgesCelebrityPostsToo(t *testing.T) {
	followerID := idgen.Generate()
	followeeID := idgen.Generate()
	post1 := idgen.Generate()
	otherPost := idgen.Generate()

	posts := &fakePostLookup{postsByAuthor: map[idgen.ID][]*models.Post{
		followeeID: {{ID: post1, AuthorID: followeeID}},
	}}
	writer := newFakeTimelineWriter()
	writer.timelines[followerID] = []idgen.ID{post1, otherPost}

	m := New(&fakeUserLookup{}, posts, &fakeFollowerLookup{}, writer, DefaultConfig())

	msg := newMessage(t, models.UserUnfollowedPayload{FollowerID: followerID, FolloweeID: followeeID})
	if _, err := m.HandleUserUnfollowed(msg); err != nil {
		t.Fatalf("HandleUserUnfollowed: %v", err)
	}

	got := writer.timelines[followerID]
	if len(got) != 1 || got[0] != otherPost {
		t.Errorf("unfollowing a celebrity must still purge their backfilled posts, got %v", got)
	}
}
