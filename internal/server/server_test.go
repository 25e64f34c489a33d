package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatekeeper/internal/challenge"
	"gatekeeper/internal/classifier"
	"gatekeeper/internal/config"
	"gatekeeper/internal/dispatch"
	"gatekeeper/internal/flags"
	"gatekeeper/internal/modqueue"
	"gatekeeper/internal/pending"
	"gatekeeper/internal/testutil"
	"gatekeeper/internal/trust"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChatID int64 = -100500

type serverFixture struct {
	app  *fiber.App
	fake *testutil.FakePlatform
}

func newServerFixture(t *testing.T, secret string) *serverFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.NewTestDB(t)
	fake := testutil.NewFakePlatform()
	registry := challenge.NewRegistry()
	t.Cleanup(registry.Drain)

	queue := modqueue.NewQueue(rdb, fake, testChatID, func() []int64 { return []int64{1} })
	tracker := trust.NewTracker(db, fake, classifier.Noop{}, queue, testChatID, 10)
	challenges := challenge.NewService(pending.NewStore(rdb), registry, fake, tracker, time.Minute)
	router := dispatch.NewRouter(fake, challenges, tracker, queue, flags.NewManager(rdb, true), testChatID, "testchat", 900, []int64{1})

	cfg := &config.Config{
		ChatID:         testChatID,
		WebhookSecret:  secret,
		CaptchaTimeout: 30,
		TrustThreshold: 10,
		Env:            "test",
	}
	srv := New(cfg, router, rdb, db)
	return &serverFixture{app: srv.SetupApp(), fake: fake}
}

func postWebhook(t *testing.T, app *fiber.App, secret, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/"+secret, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestWebhook_WrongSecretRejected(t *testing.T) {
	f := newServerFixture(t, "sekret")

	code := postWebhook(t, f.app, "guess", `{"update_id":1}`)
	assert.Equal(t, fiber.StatusForbidden, code)
}

func TestWebhook_NoSecretConfiguredRejectsAll(t *testing.T) {
	f := newServerFixture(t, "")

	code := postWebhook(t, f.app, "anything", `{"update_id":1}`)
	assert.Equal(t, fiber.StatusForbidden, code)
}

func TestWebhook_MalformedBody(t *testing.T) {
	f := newServerFixture(t, "sekret")

	code := postWebhook(t, f.app, "sekret", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestWebhook_DispatchesUpdate(t *testing.T) {
	f := newServerFixture(t, "sekret")

	body := `{
		"update_id": 7,
		"message": {
			"message_id": 10,
			"from": {"id": 5, "first_name": "greeter"},
			"chat": {"id": -100500, "type": "supergroup"},
			"new_chat_members": [{"id": 60, "first_name": "human"}]
		}
	}`
	code := postWebhook(t, f.app, "sekret", body)
	assert.Equal(t, fiber.StatusOK, code)

	// The join ran through the challenge path.
	assert.NotEmpty(t, f.fake.CallsTo("SendMessage"))
	restricts := f.fake.CallsTo("RestrictMember")
	require.Len(t, restricts, 1)
	assert.Equal(t, int64(60), restricts[0].UserID)
}

func TestHealthz(t *testing.T) {
	f := newServerFixture(t, "sekret")

	resp, err := f.app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	f := newServerFixture(t, "sekret")

	resp, err := f.app.Test(httptest.NewRequest("GET", "/readyz", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
