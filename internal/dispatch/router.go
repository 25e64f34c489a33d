// Package dispatch routes inbound platform updates to the gating services.
// Routing is a closed switch over event kinds; the hard logic lives in the
// challenge, trust and modqueue packages.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"gatekeeper/internal/challenge"
	"gatekeeper/internal/flags"
	"gatekeeper/internal/logging"
	"gatekeeper/internal/models"
	"gatekeeper/internal/modqueue"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/platform"
	"gatekeeper/internal/trust"

	"github.com/google/uuid"
)

// EventKind is the closed set of inbound event variants.
type EventKind string

const (
	EventNewParticipants     EventKind = "new_participants"
	EventContent             EventKind = "content"
	EventCommand             EventKind = "command"
	EventInteractiveResponse EventKind = "interactive_response"
	EventAdminDecision       EventKind = "admin_decision"
	EventIgnored             EventKind = "ignored"
)

// Router extracts arguments from raw platform events and invokes the
// matching handler.
type Router struct {
	client     platform.Client
	challenges *challenge.Service
	tracker    *trust.Tracker
	queue      *modqueue.Queue
	flags      *flags.Manager
	chatID     int64
	chatName   string
	selfID     int64

	mu     sync.RWMutex
	admins map[int64]struct{}
}

// NewRouter wires a Router for the guarded chat. selfID is the service's own
// platform account, exempt from bot screening. adminIDs seeds the
// administrator set; /admins refreshes it from the platform.
func NewRouter(client platform.Client, challenges *challenge.Service, tracker *trust.Tracker, queue *modqueue.Queue, flagMgr *flags.Manager, chatID int64, chatName string, selfID int64, adminIDs []int64) *Router {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Router{
		client:     client,
		challenges: challenges,
		tracker:    tracker,
		queue:      queue,
		flags:      flagMgr,
		chatID:     chatID,
		chatName:   chatName,
		selfID:     selfID,
		admins:     admins,
	}
}

// IsAdmin reports whether the given participant is a known administrator.
func (r *Router) IsAdmin(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.admins[userID]
	return ok
}

// AdminIDs returns a snapshot of the administrator set.
func (r *Router) AdminIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.admins))
	for id := range r.admins {
		out = append(out, id)
	}
	return out
}

// RefreshAdmins replaces the administrator set from the platform.
func (r *Router) RefreshAdmins(ctx context.Context) ([]int64, error) {
	ids, err := r.client.GetAdmins(ctx, r.chatID)
	if err != nil {
		return nil, err
	}
	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	r.mu.Lock()
	r.admins = next
	r.mu.Unlock()
	return ids, nil
}

// Classify maps an update to its event kind.
func (r *Router) Classify(update platform.Update) EventKind {
	switch {
	case update.CallbackQuery != nil:
		data := update.CallbackQuery.Data
		if strings.HasPrefix(data, "captcha_") {
			return EventInteractiveResponse
		}
		if strings.HasPrefix(data, "case_") {
			return EventAdminDecision
		}
		return EventIgnored
	case update.Message != nil:
		msg := update.Message
		if len(msg.NewChatMembers) > 0 {
			return EventNewParticipants
		}
		text := msg.Text
		if strings.HasPrefix(text, "/") || strings.HasPrefix(strings.ToLower(text), "!report") {
			return EventCommand
		}
		if msg.From != nil && (msg.Content() != "" || msg.HasMedia()) {
			return EventContent
		}
	}
	return EventIgnored
}

// HandleUpdate dispatches one inbound update. Errors from expected race
// outcomes are absorbed here; anything else is logged and dropped so one bad
// update never stalls the stream.
func (r *Router) HandleUpdate(ctx context.Context, update platform.Update) {
	ctx = logging.WithCorrelationID(ctx, uuid.NewString())
	if update.Message != nil {
		ctx = logging.WithUpdate(ctx, update.ID, update.Message.Chat.ID)
	} else {
		ctx = logging.WithUpdate(ctx, update.ID, r.chatID)
	}

	kind := r.Classify(update)
	observability.UpdatesDispatched.WithLabelValues(string(kind)).Inc()

	var err error
	switch kind {
	case EventNewParticipants:
		err = r.handleNewParticipants(ctx, update.Message)
	case EventCommand:
		err = r.handleCommand(ctx, update.Message)
	case EventContent:
		err = r.handleContent(ctx, update.Message)
	case EventInteractiveResponse:
		err = r.handleInteractiveResponse(ctx, update.CallbackQuery)
	case EventAdminDecision:
		err = r.handleAdminDecision(ctx, update.CallbackQuery)
	case EventIgnored:
		return
	}
	if err != nil {
		logging.Logger.ErrorContext(ctx, "update handling failed",
			slog.String("kind", string(kind)),
			slog.Any("error", err))
	}
}

// OnNewParticipants screens joined accounts and issues a challenge to the
// human-shaped remainder. Platform bot accounts are kicked outright unless
// an admin brought them in.
func (r *Router) OnNewParticipants(ctx context.Context, chatID int64, participants []platform.User, adminInitiated bool) error {
	humans := make([]platform.User, 0, len(participants))
	for _, p := range participants {
		if p.IsBot {
			// Being added to the chat delivers the service's own account
			// as a joined bot; kicking it would always fail.
			if p.ID == r.selfID || adminInitiated {
				continue
			}
			if err := r.client.KickMember(ctx, chatID, p.ID); err != nil {
				logging.Logger.WarnContext(ctx, "failed to kick bot account",
					slog.Int64("user_id", p.ID),
					slog.Any("error", err))
				continue
			}
			observability.Evictions.WithLabelValues("bot account").Inc()
			logging.Logger.InfoContext(ctx, "bot account kicked",
				slog.Int64("user_id", p.ID),
				slog.String("name", p.DisplayName()))
			continue
		}
		humans = append(humans, p)
	}
	if len(humans) == 0 {
		return nil
	}

	if r.flags.CaptchaEnabled(ctx) {
		return r.challenges.Issue(ctx, chatID, humans)
	}

	// Challenge disabled: record the newcomers and keep them inside the
	// monitored window without a captcha.
	for _, p := range humans {
		if err := r.tracker.EnsureRecord(ctx, p.ID); err != nil {
			logging.Logger.WarnContext(ctx, "failed to create trust record",
				slog.Int64("user_id", p.ID),
				slog.Any("error", err))
			continue
		}
		if err := r.client.RestrictMember(ctx, chatID, p.ID, platform.BaselinePermissions()); err != nil {
			logging.Logger.WarnContext(ctx, "failed to restrict newcomer",
				slog.Int64("user_id", p.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

// OnContent feeds one message into the trust state machine.
func (r *Router) OnContent(ctx context.Context, from platform.User, content string, messageID int) error {
	return r.tracker.ClassifyAndGate(ctx, from, messageID, content)
}

// OnInteractiveResponse forwards a challenge answer, acknowledging expected
// race outcomes informationally.
func (r *Router) OnInteractiveResponse(ctx context.Context, key challenge.Key, from platform.User, verdict challenge.Verdict, callbackID string) error {
	err := r.challenges.Respond(ctx, key, from, verdict)
	switch {
	case err == nil:
		if verdict == challenge.VerdictHuman {
			r.answer(ctx, callbackID, "Welcome!")
		}
		return nil
	case errors.Is(err, models.ErrUnknownChallenge):
		r.answer(ctx, callbackID, "This challenge is already closed.")
		return nil
	case errors.Is(err, models.ErrNotAPendingParticipant):
		r.answer(ctx, callbackID, "This message is not for you.")
		return nil
	}
	return err
}

// OnAdminDecision forwards a moderation decision, acknowledging a lost race
// informationally.
func (r *Router) OnAdminDecision(ctx context.Context, caseID int, decision modqueue.Decision, callbackID string) error {
	err := r.queue.Decide(ctx, caseID, decision)
	switch {
	case err == nil:
		r.answer(ctx, callbackID, "OK.")
		return nil
	case errors.Is(err, models.ErrUnknownOrResolvedCase):
		r.answer(ctx, callbackID, "This message is already moderated.")
		return nil
	}
	return err
}

func (r *Router) handleNewParticipants(ctx context.Context, msg *platform.Message) error {
	if msg.Chat.ID != r.chatID {
		return nil
	}
	adminInitiated := msg.From != nil && r.IsAdmin(msg.From.ID)
	if err := r.OnNewParticipants(ctx, msg.Chat.ID, msg.NewChatMembers, adminInitiated); err != nil {
		return err
	}
	// The join service message carries no information once screening ran.
	if err := r.client.DeleteMessage(ctx, msg.Chat.ID, msg.ID); err != nil {
		logging.Logger.InfoContext(ctx, "could not delete join message", slog.Any("error", err))
	}
	return nil
}

func (r *Router) handleContent(ctx context.Context, msg *platform.Message) error {
	if msg.Chat.ID != r.chatID || msg.From == nil {
		return nil
	}
	return r.OnContent(ctx, *msg.From, msg.Content(), msg.ID)
}

func (r *Router) handleInteractiveResponse(ctx context.Context, cb *platform.CallbackQuery) error {
	if cb.Message == nil {
		return nil
	}
	verdict := challenge.VerdictRobot
	if cb.Data == "captcha_passed" {
		verdict = challenge.VerdictHuman
	}
	key := challenge.Key{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.ID}
	return r.OnInteractiveResponse(ctx, key, cb.From, verdict, cb.ID)
}

func (r *Router) handleAdminDecision(ctx context.Context, cb *platform.CallbackQuery) error {
	if !r.IsAdmin(cb.From.ID) {
		r.answer(ctx, cb.ID, "Administrators only.")
		return nil
	}

	var decision modqueue.Decision
	var rawID string
	switch {
	case strings.HasPrefix(cb.Data, "case_remove:"):
		decision = modqueue.DecisionRemove
		rawID = strings.TrimPrefix(cb.Data, "case_remove:")
	case strings.HasPrefix(cb.Data, "case_restore:"):
		decision = modqueue.DecisionRestore
		rawID = strings.TrimPrefix(cb.Data, "case_restore:")
	default:
		return nil
	}
	caseID, err := strconv.Atoi(rawID)
	if err != nil {
		logging.Logger.WarnContext(ctx, "malformed case callback", slog.String("data", cb.Data))
		return nil
	}
	return r.OnAdminDecision(ctx, caseID, decision, cb.ID)
}

func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.client.AnswerCallback(ctx, callbackID, text); err != nil {
		logging.Logger.InfoContext(ctx, "callback acknowledgment failed", slog.Any("error", err))
	}
}
