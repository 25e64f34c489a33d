// Package flags holds runtime toggles shared across replicas through Redis.
package flags

import (
	"context"

	"gatekeeper/internal/cache"

	"github.com/redis/go-redis/v9"
)

// Manager evaluates the captcha-enabled toggle. The configured default
// applies until an admin flips the flag; the flipped value is stored in
// Redis so it survives restarts and is visible to every replica.
type Manager struct {
	rdb            *redis.Client
	captchaDefault bool
}

// NewManager returns a Manager with the given configured default.
func NewManager(rdb *redis.Client, captchaDefault bool) *Manager {
	return &Manager{rdb: rdb, captchaDefault: captchaDefault}
}

// CaptchaEnabled reports whether new participants should be challenged.
// Store errors fall back to the configured default so gating keeps working
// through a Redis hiccup.
func (m *Manager) CaptchaEnabled(ctx context.Context) bool {
	val, err := m.rdb.Get(ctx, cache.CaptchaFlagKey()).Result()
	if err != nil {
		return m.captchaDefault
	}
	return val == "1"
}

// toggleScript flips the stored flag in one round trip so concurrent
// toggles from different admins never lose a flip. ARGV[1] supplies the
// current value when the key is unset.
var toggleScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == false then
	cur = ARGV[1]
end
local next = '1'
if cur == '1' then
	next = '0'
end
redis.call('SET', KEYS[1], next)
return next
`)

// ToggleCaptcha atomically flips the flag and returns the new value.
func (m *Manager) ToggleCaptcha(ctx context.Context) (bool, error) {
	seed := "0"
	if m.captchaDefault {
		seed = "1"
	}
	val, err := toggleScript.Run(ctx, m.rdb, []string{cache.CaptchaFlagKey()}, seed).Text()
	if err != nil {
		return false, err
	}
	return val == "1", nil
}
