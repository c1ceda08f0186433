package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned timelines keyed by handle. Handles without an
// entry are reported as missing on the remote side.
type fakeFetcher struct {
	mu        sync.Mutex
	timelines map[string]*Timeline
	errs      map[string]error
	calls     map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		timelines: make(map[string]*Timeline),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *fakeFetcher) set(handle string, posts ...Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelines[handle] = &Timeline{UserID: "id-" + handle, Username: handle, DisplayName: handle, Posts: posts}
}

func (f *fakeFetcher) fail(handle string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[handle] = err
}

func (f *fakeFetcher) callCount(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[handle]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) FetchRecentPosts(_ context.Context, handle string, limit int) (*Timeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[handle]++

	if err, ok := f.errs[handle]; ok {
		return nil, err
	}
	tl, ok := f.timelines[handle]
	if !ok {
		return nil, ErrHandleNotFound
	}
	out := *tl
	if len(out.Posts) > limit {
		out.Posts = out.Posts[:limit]
	}
	return &out, nil
}

func newTestSyncer(t *testing.T) (*Syncer, *Store, *fakeFetcher, *Metrics) {
	t.Helper()
	store := newTestStore(t)
	fetcher := newFakeFetcher()
	metrics := NewMetrics("twitoff")
	return NewSyncer(store, fetcher, DEFAULT_TWEET_LIMIT, metrics, zerolog.Nop()), store, fetcher, metrics
}

func TestAddOrUpdateUserScenario(t *testing.T) {
	syncer, store, fetcher, _ := newTestSyncer(t)
	ctx := context.Background()

	fetcher.set("alice", Post{ID: "1", Text: "one"}, Post{ID: "2", Text: "two"})
	res, err := syncer.AddOrUpdateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)

	tweets, err := store.TweetsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tweets, 2)

	// remote now has three posts, two of them already stored
	fetcher.set("alice", Post{ID: "3", Text: "three"}, Post{ID: "2", Text: "two"}, Post{ID: "1", Text: "one"})
	res, err = syncer.AddOrUpdateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Inserted)

	tweets, err = store.TweetsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tweets, 3)
}

func TestAddOrUpdateUserIsIdempotent(t *testing.T) {
	syncer, store, fetcher, metrics := newTestSyncer(t)
	ctx := context.Background()
	fetcher.set("alice", Post{ID: "1", Text: "one"}, Post{ID: "2", Text: "two"})

	_, err := syncer.AddOrUpdateUser(ctx, "alice")
	require.NoError(t, err)
	first, err := store.TweetsFor(ctx, "alice")
	require.NoError(t, err)

	res, err := syncer.AddOrUpdateUser(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	second, err := store.TweetsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, tweetIDs(first), tweetIDs(second))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SyncTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TweetsInserted))
}

func TestAddOrUpdateUserNormalizesHandle(t *testing.T) {
	syncer, _, fetcher, _ := newTestSyncer(t)
	fetcher.set("alice", Post{ID: "1", Text: "one"})

	res, err := syncer.AddOrUpdateUser(context.Background(), "  @Alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Name)
	assert.Equal(t, 1, fetcher.callCount("alice"))
}

func TestAddOrUpdateUserUnknownHandle(t *testing.T) {
	syncer, store, _, metrics := newTestSyncer(t)
	ctx := context.Background()

	_, err := syncer.AddOrUpdateUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrHandleNotFound)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SyncTotal.WithLabelValues("handle_not_found")))
}

func TestAddOrUpdateUserRemoteFailure(t *testing.T) {
	syncer, store, fetcher, _ := newTestSyncer(t)
	ctx := context.Background()

	fetcher.set("alice", Post{ID: "1", Text: "one"})
	_, err := syncer.AddOrUpdateUser(ctx, "alice")
	require.NoError(t, err)

	fetcher.fail("alice", &RemoteServiceError{Op: "fetch timeline", Err: errors.New("connection reset")})
	_, err = syncer.AddOrUpdateUser(ctx, "alice")

	var remote *RemoteServiceError
	assert.True(t, errors.As(err, &remote))

	tweets, err := store.TweetsFor(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, tweets, 1)
}

func TestAddOrUpdateUserInvalidHandle(t *testing.T) {
	syncer, _, fetcher, _ := newTestSyncer(t)

	for _, handle := range []string{"", "   ", "not a handle", "way_too_long_for_twitter", "<script>"} {
		_, err := syncer.AddOrUpdateUser(context.Background(), handle)
		assert.ErrorIs(t, err, ErrInvalidHandle, "handle %q", handle)
	}
	assert.Zero(t, fetcher.totalCalls())
}

func TestUpdateAllUsers(t *testing.T) {
	syncer, store, fetcher, _ := newTestSyncer(t)
	ctx := context.Background()

	fetcher.set("alice", Post{ID: "1", Text: "one"})
	fetcher.set("bob", Post{ID: "10", Text: "ten"})
	for _, h := range []string{"alice", "bob"} {
		_, err := syncer.AddOrUpdateUser(ctx, h)
		require.NoError(t, err)
	}

	fetcher.set("alice", Post{ID: "2", Text: "two"}, Post{ID: "1", Text: "one"})
	fetcher.fail("bob", &RemoteServiceError{Op: "lookup user", StatusCode: 503, Err: errors.New("over capacity")})

	results, err := syncer.UpdateAllUsers(ctx)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].User.Name)
	assert.Equal(t, 1, results[0].Inserted)

	var remote *RemoteServiceError
	assert.True(t, errors.As(err, &remote))

	tweets, err := store.TweetsFor(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, tweets, 1)
}

func TestSyncCanceled(t *testing.T) {
	syncer, _, fetcher, metrics := newTestSyncer(t)
	fetcher.set("alice", Post{ID: "1", Text: "one"})

	_, err := syncer.AddOrUpdateUser(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = syncer.AddOrUpdateUser(ctx, "alice")
	require.Error(t, err)
	assert.Equal(t, "canceled", errorKind(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SyncTotal.WithLabelValues("canceled")))
	assert.Zero(t, testutil.ToFloat64(metrics.SyncTotal.WithLabelValues("storage_error")))

	_, err = syncer.UpdateAllUsers(ctx)
	require.Error(t, err)
	assert.Equal(t, "canceled", errorKind(err))
}
