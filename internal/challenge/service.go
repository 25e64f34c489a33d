// Package challenge orchestrates the captcha lifecycle for newly joined
// participants: issue a challenge, collect responses, and evict whoever is
// still pending when the deadline fires.
package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gatekeeper/internal/cache"
	"gatekeeper/internal/logging"
	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/pending"
	"gatekeeper/internal/platform"
	"gatekeeper/internal/trust"
)

// Verdict is a participant's interactive answer to the challenge.
type Verdict string

const (
	// VerdictHuman is the passing answer.
	VerdictHuman Verdict = "human"
	// VerdictRobot is the failing answer; the participant is evicted but
	// unbanned so they may rejoin and retry.
	VerdictRobot Verdict = "robot"
)

// Key identifies one issued challenge: the chat plus the announcement
// message carrying the response buttons.
type Key struct {
	ChatID    int64
	MessageID int
}

func (k Key) String() string {
	return cache.ChallengePendingKey(k.ChatID, k.MessageID)
}

// Service runs the challenge state machine. All cross-handler state lives in
// the pending store; the registry only holds this process's wakeup timers.
type Service struct {
	store    *pending.Store
	registry *Registry
	client   platform.Client
	trust    *trust.Tracker
	timeout  time.Duration
}

// NewService returns a challenge Service with the given eviction timeout.
func NewService(store *pending.Store, registry *Registry, client platform.Client, tracker *trust.Tracker, timeout time.Duration) *Service {
	return &Service{
		store:    store,
		registry: registry,
		client:   client,
		trust:    tracker,
		timeout:  timeout,
	}
}

// Issue restricts the given participants, announces a challenge naming them,
// and schedules the eviction deadline. Participants the platform refuses to
// restrict (for example, they already left) are silently dropped; with
// nobody left no challenge is issued.
func (s *Service) Issue(ctx context.Context, chatID int64, participants []platform.User) error {
	restricted := make([]platform.User, 0, len(participants))
	for _, p := range participants {
		if err := s.client.RestrictMember(ctx, chatID, p.ID, platform.NoPermissions()); err != nil {
			logging.Logger.InfoContext(ctx, "skipping participant the platform would not restrict",
				slog.Int64("user_id", p.ID),
				slog.Any("error", err))
			continue
		}
		restricted = append(restricted, p)
	}
	if len(restricted) == 0 {
		return nil
	}

	text := announcement(restricted, s.timeout)
	buttons := []platform.Button{
		{Text: "I am human", Data: "captcha_passed"},
		{Text: "I am a robot", Data: "captcha_failed"},
	}
	messageID, err := s.client.SendMessage(ctx, chatID, text, buttons)
	if err != nil {
		return fmt.Errorf("announce challenge: %w", err)
	}

	key := Key{ChatID: chatID, MessageID: messageID}
	ids := make([]int64, 0, len(restricted))
	for _, p := range restricted {
		ids = append(ids, p.ID)
	}
	if err := s.store.Create(ctx, key.ChatID, key.MessageID, ids, s.timeout); err != nil {
		return fmt.Errorf("create pending set: %w", err)
	}

	s.registry.Schedule(key.String(), s.timeout, func() {
		// The timer fires on its own goroutine well after the inbound
		// update that created it; give the eviction batch its own deadline.
		tctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Timeout(tctx, key); err != nil {
			logging.Logger.ErrorContext(tctx, "challenge timeout handling failed",
				slog.String("challenge", key.String()),
				slog.Any("error", err))
		}
	})

	observability.ChallengesIssued.Inc()
	logging.Logger.InfoContext(ctx, "challenge issued",
		slog.String("challenge", key.String()),
		slog.Int("participants", len(restricted)),
		slog.Duration("timeout", s.timeout))
	return nil
}

// Respond handles one participant's interactive answer. Unknown challenges
// and non-pending responders are expected race outcomes returned as
// sentinel errors; the caller acknowledges them informationally and moves
// on. A duplicate response from the same participant takes the non-pending
// path, so the capability or eviction action runs at most once.
func (s *Service) Respond(ctx context.Context, key Key, from platform.User, verdict Verdict) error {
	open, err := s.store.IsOpen(ctx, key.ChatID, key.MessageID)
	if err != nil {
		return err
	}
	if !open {
		return models.ErrUnknownChallenge
	}

	wasPending, err := s.store.Remove(ctx, key.ChatID, key.MessageID, from.ID)
	if err != nil {
		return err
	}
	if !wasPending {
		return models.ErrNotAPendingParticipant
	}

	switch verdict {
	case VerdictHuman:
		s.admit(ctx, key.ChatID, from)
	default:
		s.evict(ctx, key.ChatID, from.ID, "self-declared robot")
	}

	left, err := s.store.Count(ctx, key.ChatID, key.MessageID)
	if err != nil {
		return err
	}
	if left == 0 {
		s.resolve(ctx, key, observability.OutcomeCompleted)
	}
	return nil
}

// Timeout evicts every participant still pending at the deadline. A firing
// that loses the resolution claim is a no-op: the challenge completed or was
// cancelled first.
func (s *Service) Timeout(ctx context.Context, key Key) error {
	claimed, err := s.store.Claim(ctx, key.ChatID, key.MessageID)
	if err != nil {
		return err
	}
	if !claimed {
		logging.Logger.InfoContext(ctx, "stale timeout firing ignored",
			slog.String("challenge", key.String()))
		return nil
	}

	evicted := 0
	for {
		userID, ok, err := s.store.Pop(ctx, key.ChatID, key.MessageID)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.evict(ctx, key.ChatID, userID, "challenge timeout")
		evicted++
	}

	s.cleanup(ctx, key)
	observability.ChallengesResolved.WithLabelValues(observability.OutcomeTimeout).Inc()
	logging.Logger.InfoContext(ctx, "challenge timed out",
		slog.String("challenge", key.String()),
		slog.Int("evicted", evicted))
	return nil
}

// admit grants baseline capabilities and registers the participant with the
// trust tracker. Verified participants stay inside the monitored window
// until the message threshold, so inline-bot output remains restricted.
func (s *Service) admit(ctx context.Context, chatID int64, from platform.User) {
	if err := s.trust.EnsureRecord(ctx, from.ID); err != nil {
		logging.Logger.WarnContext(ctx, "failed to create trust record",
			slog.Int64("user_id", from.ID),
			slog.Any("error", err))
	}

	perms := platform.BaselinePermissions()
	trusted, err := s.trust.FullyTrusted(ctx, from.ID)
	if err == nil && trusted {
		perms = platform.FullPermissions()
	}
	if err := s.client.RestrictMember(ctx, chatID, from.ID, perms); err != nil {
		logging.Logger.WarnContext(ctx, "failed to grant capabilities after captcha pass",
			slog.Int64("user_id", from.ID),
			slog.Any("error", err))
		return
	}
	logging.Logger.InfoContext(ctx, "participant passed captcha",
		slog.Int64("user_id", from.ID),
		slog.String("name", from.DisplayName()))
}

// evict removes a participant and immediately unbans them so the same person
// can rejoin and retry later. Eviction is corrective, not permanent.
func (s *Service) evict(ctx context.Context, chatID, userID int64, reason string) {
	if err := s.client.KickMember(ctx, chatID, userID); err != nil {
		logging.Logger.WarnContext(ctx, "eviction kick failed",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return
	}
	if err := s.client.UnbanMember(ctx, chatID, userID); err != nil {
		logging.Logger.WarnContext(ctx, "eviction unban failed",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
	observability.Evictions.WithLabelValues(reason).Inc()
	logging.Logger.InfoContext(ctx, "participant evicted",
		slog.Int64("user_id", userID),
		slog.String("reason", reason))
}

// resolve finishes a challenge from the response path: claim the marker,
// cancel the scheduled eviction, and clean up. Losing the claim means the
// timeout got there first; whoever claims cleans up.
func (s *Service) resolve(ctx context.Context, key Key, outcome string) {
	claimed, err := s.store.Claim(ctx, key.ChatID, key.MessageID)
	if err != nil {
		logging.Logger.ErrorContext(ctx, "resolution claim failed",
			slog.String("challenge", key.String()),
			slog.Any("error", err))
		return
	}
	if !claimed {
		return
	}

	s.cleanup(ctx, key)
	observability.ChallengesResolved.WithLabelValues(outcome).Inc()
	logging.Logger.InfoContext(ctx, "challenge resolved",
		slog.String("challenge", key.String()),
		slog.String("outcome", outcome))
}

// cleanup cancels the timer, deletes the announcement and clears store
// state. Only the claim winner calls it.
func (s *Service) cleanup(ctx context.Context, key Key) {
	s.registry.Cancel(key.String())
	if err := s.client.DeleteMessage(ctx, key.ChatID, key.MessageID); err != nil {
		logging.Logger.WarnContext(ctx, "failed to delete challenge announcement",
			slog.String("challenge", key.String()),
			slog.Any("error", err))
	}
	if err := s.store.Clear(ctx, key.ChatID, key.MessageID); err != nil {
		logging.Logger.WarnContext(ctx, "failed to clear challenge state",
			slog.String("challenge", key.String()),
			slog.Any("error", err))
	}
}

func announcement(participants []platform.User, timeout time.Duration) string {
	mentions := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.Username != "" {
			mentions = append(mentions, "@"+p.Username)
			continue
		}
		mentions = append(mentions, fmt.Sprintf("[%s](tg://user?id=%d)", p.DisplayName(), p.ID))
	}
	return fmt.Sprintf(
		"%s: welcome! Press the button proving you are human within %d seconds or you will be removed.",
		strings.Join(mentions, ", "), int(timeout.Seconds()),
	)
}
