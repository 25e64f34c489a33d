// Package modqueue implements the moderation case protocol: a flagged
// message awaits exactly one binding admin decision.
package modqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gatekeeper/internal/cache"
	"gatekeeper/internal/logging"
	"gatekeeper/internal/models"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/platform"

	"github.com/redis/go-redis/v9"
)

// Decision is a binding admin verdict on a moderation case.
type Decision string

const (
	// DecisionRemove evicts the subject participant from the chat.
	DecisionRemove Decision = "remove"
	// DecisionRestore returns full capabilities to the subject participant.
	DecisionRestore Decision = "restore"
)

// Queue tracks pending moderation cases in Redis and performs the decided
// platform action. The case marker is consumed with GETDEL, so of two admins
// deciding concurrently exactly one performs an action.
type Queue struct {
	rdb    *redis.Client
	client platform.Client
	chatID int64
	admins func() []int64
}

// NewQueue returns a Queue. admins supplies the current administrator ids to
// notify on each new case.
func NewQueue(rdb *redis.Client, client platform.Client, chatID int64, admins func() []int64) *Queue {
	return &Queue{rdb: rdb, client: client, chatID: chatID, admins: admins}
}

// Flag opens a Pending case for the given message and presents it to every
// administrator with remove/restore affordances. Flagging an already-pending
// message is a no-op.
func (q *Queue) Flag(ctx context.Context, messageID int, subject platform.User, excerpt string) error {
	created, err := q.rdb.SetNX(ctx, cache.ModerationCaseKey(messageID), subject.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("flag case %d: %w", messageID, err)
	}
	if !created {
		return nil
	}

	text := fmt.Sprintf(
		"Flagged message %d from %s (id %d):\n%s",
		messageID, subject.DisplayName(), subject.ID, excerpt,
	)
	buttons := []platform.Button{
		{Text: "Remove participant", Data: fmt.Sprintf("case_remove:%d", messageID)},
		{Text: "Restore capabilities", Data: fmt.Sprintf("case_restore:%d", messageID)},
	}

	// A failed notification to one admin must not silence the rest.
	for _, adminID := range q.admins() {
		if _, err := q.client.SendMessage(ctx, adminID, text, buttons); err != nil {
			logging.Logger.WarnContext(ctx, "failed to notify admin of moderation case",
				slog.Int64("admin_id", adminID),
				slog.Int("case_id", messageID),
				slog.Any("error", err))
		}
	}

	logging.Logger.InfoContext(ctx, "moderation case opened",
		slog.Int("case_id", messageID),
		slog.Int64("subject_id", subject.ID))
	return nil
}

// Decide claims the case and performs the requested platform action. The
// first decision wins; later attempts return ErrUnknownOrResolvedCase and
// perform nothing.
func (q *Queue) Decide(ctx context.Context, messageID int, decision Decision) error {
	if decision != DecisionRemove && decision != DecisionRestore {
		return models.NewValidationError(fmt.Sprintf("unknown decision %q", decision))
	}

	val, err := q.rdb.GetDel(ctx, cache.ModerationCaseKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.ErrUnknownOrResolvedCase
	}
	if err != nil {
		return fmt.Errorf("decide case %d: %w", messageID, err)
	}

	subjectID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fmt.Errorf("decide case %d: corrupt subject id %q", messageID, val)
	}

	switch decision {
	case DecisionRemove:
		if err := q.client.KickMember(ctx, q.chatID, subjectID); err != nil {
			logging.Logger.WarnContext(ctx, "remove decision failed",
				slog.Int("case_id", messageID),
				slog.Int64("subject_id", subjectID),
				slog.Any("error", err))
		}
	case DecisionRestore:
		if err := q.client.RestrictMember(ctx, q.chatID, subjectID, platform.FullPermissions()); err != nil {
			logging.Logger.WarnContext(ctx, "restore decision failed",
				slog.Int("case_id", messageID),
				slog.Int64("subject_id", subjectID),
				slog.Any("error", err))
		}
	}

	observability.ModerationDecisions.WithLabelValues(string(decision)).Inc()
	logging.Logger.InfoContext(ctx, "moderation case decided",
		slog.Int("case_id", messageID),
		slog.Int64("subject_id", subjectID),
		slog.String("decision", string(decision)))
	return nil
}
