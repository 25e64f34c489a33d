package cache

import "fmt"

const (
	challengePendingPrefix = "captcha:%d:%d"
	challengeOpenPrefix    = "captcha:%d:%d:open"
	moderationCasePrefix   = "modcase:%d"
	captchaFlagKey         = "gatekeeper:captcha_enabled"
)

// ChallengePendingKey is the Redis set holding pending participant ids for
// the challenge announced by messageID in chatID.
func ChallengePendingKey(chatID int64, messageID int) string {
	return fmt.Sprintf(challengePendingPrefix, chatID, messageID)
}

// ChallengeOpenKey is the marker claimed atomically by whichever actor
// resolves the challenge.
func ChallengeOpenKey(chatID int64, messageID int) string {
	return fmt.Sprintf(challengeOpenPrefix, chatID, messageID)
}

// ModerationCaseKey marks a flagged message awaiting an admin decision.
func ModerationCaseKey(messageID int) string {
	return fmt.Sprintf(moderationCasePrefix, messageID)
}

// CaptchaFlagKey stores the runtime captcha-enabled toggle.
func CaptchaFlagKey() string {
	return captchaFlagKey
}
