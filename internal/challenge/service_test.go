package challenge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gatekeeper/internal/classifier"
	"gatekeeper/internal/models"
	"gatekeeper/internal/modqueue"
	"gatekeeper/internal/pending"
	"gatekeeper/internal/platform"
	"gatekeeper/internal/testutil"
	"gatekeeper/internal/trust"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChatID int64 = -100500

type fixture struct {
	svc      *Service
	store    *pending.Store
	registry *Registry
	tracker  *trust.Tracker
	fake     *testutil.FakePlatform
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fake := testutil.NewFakePlatform()
	store := pending.NewStore(rdb)
	registry := NewRegistry()
	t.Cleanup(registry.Drain)

	queue := modqueue.NewQueue(rdb, fake, testChatID, func() []int64 { return nil })
	tracker := trust.NewTracker(testutil.NewTestDB(t), fake, classifier.Noop{}, queue, testChatID, 10)

	return &fixture{
		svc:      NewService(store, registry, fake, tracker, timeout),
		store:    store,
		registry: registry,
		tracker:  tracker,
		fake:     fake,
	}
}

func users(ids ...int64) []platform.User {
	out := make([]platform.User, 0, len(ids))
	for _, id := range ids {
		out = append(out, platform.User{ID: id, FirstName: fmt.Sprintf("user%d", id)})
	}
	return out
}

func issuedKey(t *testing.T, fake *testutil.FakePlatform) Key {
	t.Helper()
	sends := fake.CallsTo("SendMessage")
	require.NotEmpty(t, sends, "no challenge announcement sent")
	return Key{ChatID: sends[0].ChatID, MessageID: sends[0].MessageID}
}

func TestIssue_RestrictsAndAnnounces(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10, 20)))

	restricts := f.fake.CallsTo("RestrictMember")
	require.Len(t, restricts, 2)
	for _, c := range restricts {
		assert.Equal(t, platform.NoPermissions(), c.Perms)
	}

	key := issuedKey(t, f.fake)
	count, err := f.store.Count(ctx, key.ChatID, key.MessageID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 1, f.registry.Len())
}

func TestIssue_DropsUnrestrictableParticipants(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.fake.RestrictMemberFn = func(_ context.Context, _, userID int64, _ platform.Permissions) error {
		if userID == 20 {
			return &platform.Error{Method: "restrictChatMember", Code: 400, Description: "user not found"}
		}
		return nil
	}
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10, 20)))

	key := issuedKey(t, f.fake)
	count, err := f.store.Count(ctx, key.ChatID, key.MessageID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestIssue_NoParticipantsLeftIssuesNothing(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.fake.RestrictMemberFn = func(_ context.Context, _, _ int64, _ platform.Permissions) error {
		return &platform.Error{Method: "restrictChatMember", Code: 400, Description: "user not found"}
	}

	require.NoError(t, f.svc.Issue(context.Background(), testChatID, users(10)))

	assert.Empty(t, f.fake.CallsTo("SendMessage"))
	assert.Zero(t, f.registry.Len())
}

// One participant passes, the other is evicted at the deadline.
func TestChallenge_PassThenTimeout(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10, 20)))
	key := issuedKey(t, f.fake)

	require.NoError(t, f.svc.Respond(ctx, key, platform.User{ID: 10, FirstName: "u1"}, VerdictHuman))

	// U1 got baseline capabilities, nobody was evicted yet.
	grants := 0
	for _, c := range f.fake.CallsTo("RestrictMember") {
		if c.UserID == 10 && c.Perms == platform.BaselinePermissions() {
			grants++
		}
	}
	assert.Equal(t, 1, grants)
	assert.Empty(t, f.fake.CallsTo("KickMember"))

	require.NoError(t, f.svc.Timeout(ctx, key))

	kicks := f.fake.CallsTo("KickMember")
	require.Len(t, kicks, 1)
	assert.Equal(t, int64(20), kicks[0].UserID)
	unbans := f.fake.CallsTo("UnbanMember")
	require.Len(t, unbans, 1)
	assert.Equal(t, int64(20), unbans[0].UserID)

	deletes := f.fake.CallsTo("DeleteMessage")
	require.Len(t, deletes, 1)
	assert.Equal(t, key.MessageID, deletes[0].MessageID)

	open, err := f.store.IsOpen(ctx, key.ChatID, key.MessageID)
	require.NoError(t, err)
	assert.False(t, open)
}

// The sole participant fails, the challenge resolves
// immediately and a later timeout firing is a no-op.
func TestChallenge_RobotResolvesImmediately(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10)))
	key := issuedKey(t, f.fake)

	require.NoError(t, f.svc.Respond(ctx, key, platform.User{ID: 10}, VerdictRobot))

	kicks := f.fake.CallsTo("KickMember")
	require.Len(t, kicks, 1)
	assert.Equal(t, int64(10), kicks[0].UserID)
	require.Len(t, f.fake.CallsTo("UnbanMember"), 1)
	require.Len(t, f.fake.CallsTo("DeleteMessage"), 1)
	assert.Zero(t, f.registry.Len(), "scheduled eviction should be cancelled")

	// The stale firing must not act again.
	require.NoError(t, f.svc.Timeout(ctx, key))
	assert.Len(t, f.fake.CallsTo("KickMember"), 1)
	assert.Len(t, f.fake.CallsTo("DeleteMessage"), 1)
}

func TestRespond_UnknownChallenge(t *testing.T) {
	f := newFixture(t, time.Minute)

	err := f.svc.Respond(context.Background(), Key{ChatID: testChatID, MessageID: 777}, platform.User{ID: 10}, VerdictHuman)
	assert.ErrorIs(t, err, models.ErrUnknownChallenge)
	assert.Empty(t, f.fake.Calls())
}

func TestRespond_NotAPendingParticipant(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10)))
	key := issuedKey(t, f.fake)

	err := f.svc.Respond(ctx, key, platform.User{ID: 999}, VerdictHuman)
	assert.ErrorIs(t, err, models.ErrNotAPendingParticipant)

	// A third party must not resolve someone else's entry.
	count, countErr := f.store.Count(ctx, key.ChatID, key.MessageID)
	require.NoError(t, countErr)
	assert.Equal(t, int64(1), count)
}

// A duplicate event delivery performs the capability action only once.
func TestRespond_DuplicateIsNoOp(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10, 20)))
	key := issuedKey(t, f.fake)

	require.NoError(t, f.svc.Respond(ctx, key, platform.User{ID: 10}, VerdictHuman))
	err := f.svc.Respond(ctx, key, platform.User{ID: 10}, VerdictHuman)
	assert.ErrorIs(t, err, models.ErrNotAPendingParticipant)

	grants := 0
	for _, c := range f.fake.CallsTo("RestrictMember") {
		if c.UserID == 10 && c.Perms == platform.BaselinePermissions() {
			grants++
		}
	}
	assert.Equal(t, 1, grants)
}

// A member who already cleared the monitored window before leaving gets full
// capabilities straight back on passing the captcha.
func TestRespond_ReturningTrustedMemberGetsFullCapabilities(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := f.tracker.RecordActivity(ctx, 10)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10)))
	key := issuedKey(t, f.fake)
	require.NoError(t, f.svc.Respond(ctx, key, platform.User{ID: 10}, VerdictHuman))

	grants := 0
	for _, c := range f.fake.CallsTo("RestrictMember") {
		if c.UserID == 10 && c.Perms == platform.FullPermissions() {
			grants++
		}
	}
	assert.Equal(t, 1, grants)
}

func TestChallenge_LastResponderResolves(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10, 20)))
	key := issuedKey(t, f.fake)

	require.NoError(t, f.svc.Respond(ctx, key, platform.User{ID: 10}, VerdictHuman))
	assert.Empty(t, f.fake.CallsTo("DeleteMessage"))

	require.NoError(t, f.svc.Respond(ctx, key, platform.User{ID: 20}, VerdictHuman))
	assert.Len(t, f.fake.CallsTo("DeleteMessage"), 1)
	assert.Zero(t, f.registry.Len())
}

// Concurrent responses and a timeout firing must resolve the challenge
// exactly once: one announcement deletion, no participant acted on twice.
func TestChallenge_ConcurrentRespondAndTimeout(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	ids := []int64{10, 20, 30, 40}
	require.NoError(t, f.svc.Issue(ctx, testChatID, users(ids...)))
	key := issuedKey(t, f.fake)

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.Respond(ctx, key, platform.User{ID: id}, VerdictHuman)
			if err != nil && !errors.Is(err, models.ErrUnknownChallenge) && !errors.Is(err, models.ErrNotAPendingParticipant) {
				t.Errorf("unexpected respond error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := f.svc.Timeout(ctx, key); err != nil {
			t.Errorf("timeout error: %v", err)
		}
	}()
	wg.Wait()

	assert.Len(t, f.fake.CallsTo("DeleteMessage"), 1, "announcement deleted exactly once")

	// Every participant was either granted capabilities or evicted, never both.
	acted := map[int64]string{}
	for _, c := range f.fake.Calls() {
		switch {
		case c.Method == "RestrictMember" && c.Perms == platform.BaselinePermissions():
			assert.NotContains(t, acted, c.UserID)
			acted[c.UserID] = "granted"
		case c.Method == "KickMember":
			assert.NotContains(t, acted, c.UserID)
			acted[c.UserID] = "evicted"
		}
	}
	assert.Len(t, acted, len(ids))
}

func TestChallenge_ScheduledTimerFires(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, f.svc.Issue(ctx, testChatID, users(10)))
	key := issuedKey(t, f.fake)

	require.Eventually(t, func() bool {
		return len(f.fake.CallsTo("KickMember")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	open, err := f.store.IsOpen(ctx, key.ChatID, key.MessageID)
	require.NoError(t, err)
	assert.False(t, open)
}
