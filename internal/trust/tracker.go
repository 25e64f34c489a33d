// Package trust implements the message-count trust escalation: participants
// stay in a monitored, partially restricted state until their Nth message,
// at which point full capabilities are granted exactly once.
package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gatekeeper/internal/classifier"
	"gatekeeper/internal/logging"
	"gatekeeper/internal/models"
	"gatekeeper/internal/modqueue"
	"gatekeeper/internal/observability"
	"gatekeeper/internal/platform"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tracker drives the per-participant trust state machine.
type Tracker struct {
	db        *gorm.DB
	client    platform.Client
	inspector classifier.Classifier
	queue     *modqueue.Queue
	chatID    int64
	threshold int64
}

// NewTracker returns a Tracker promoting participants at threshold messages.
func NewTracker(db *gorm.DB, client platform.Client, inspector classifier.Classifier, queue *modqueue.Queue, chatID, threshold int64) *Tracker {
	return &Tracker{
		db:        db,
		client:    client,
		inspector: inspector,
		queue:     queue,
		chatID:    chatID,
		threshold: threshold,
	}
}

// FullyTrusted reports whether the participant has already cleared the
// monitored window. Unknown participants are untrusted.
func (t *Tracker) FullyTrusted(ctx context.Context, userID int64) (bool, error) {
	var record models.TrustRecord
	err := t.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return record.FullyTrusted(t.threshold), nil
}

// EnsureRecord creates the participant's trust record if absent. Idempotent.
func (t *Tracker) EnsureRecord(ctx context.Context, userID int64) error {
	res := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.TrustRecord{UserID: userID})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		logging.Logger.InfoContext(ctx, "trust record created", slog.Int64("user_id", userID))
	}
	return nil
}

// MessageCount returns the participant's current count, zero when no record
// exists yet.
func (t *Tracker) MessageCount(ctx context.Context, userID int64) (int64, error) {
	var record models.TrustRecord
	err := t.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return record.MessageCount, nil
}

// RecordActivity upserts the participant's trust record and increments its
// message count, returning the post-increment value. The whole operation
// runs in one transaction so concurrent messages from the same sender each
// observe a distinct count.
func (t *Tracker) RecordActivity(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.TrustRecord{UserID: userID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.TrustRecord{}).
			Where("user_id = ?", userID).
			UpdateColumn("message_count", gorm.Expr("message_count + 1")).Error; err != nil {
			return err
		}
		var record models.TrustRecord
		if err := tx.First(&record, "user_id = ?", userID).Error; err != nil {
			return err
		}
		count = record.MessageCount
		return nil
	})
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// ClassifyAndGate handles one content event from a participant: below the
// threshold the content goes to the spam classifier, on exactly the
// threshold full capabilities are granted, and above it nothing happens.
// Captcha completion and this counter compose: a verified participant is
// still monitored until the threshold.
func (t *Tracker) ClassifyAndGate(ctx context.Context, from platform.User, messageID int, content string) error {
	count, err := t.RecordActivity(ctx, from.ID)
	if err != nil {
		return err
	}

	switch {
	case count < t.threshold:
		return t.inspect(ctx, from, messageID, content)
	case count == t.threshold:
		// Promotion edge. The atomic increment guarantees only one message
		// per participant ever lands exactly on the threshold.
		if err := t.client.RestrictMember(ctx, t.chatID, from.ID, platform.FullPermissions()); err != nil {
			logging.Logger.WarnContext(ctx, "promotion restrict call failed",
				slog.Int64("user_id", from.ID),
				slog.Any("error", err))
			return nil
		}
		observability.Promotions.Inc()
		logging.Logger.InfoContext(ctx, "participant promoted to full trust",
			slog.Int64("user_id", from.ID),
			slog.Int64("message_count", count))
	}
	return nil
}

func (t *Tracker) inspect(ctx context.Context, from platform.User, messageID int, content string) error {
	verdict := t.inspector.Inspect(ctx, content)
	if !verdict.Flag && !verdict.Delete {
		return nil
	}

	logging.Logger.InfoContext(ctx, "classifier verdict",
		slog.Int64("user_id", from.ID),
		slog.Int("message_id", messageID),
		slog.String("reason", verdict.Reason))

	if verdict.Delete {
		if err := t.client.DeleteMessage(ctx, t.chatID, messageID); err != nil {
			logging.Logger.WarnContext(ctx, "failed to delete suspect message",
				slog.Int("message_id", messageID),
				slog.Any("error", err))
		}
	}
	if verdict.Flag {
		if err := t.queue.Flag(ctx, messageID, from, excerpt(content)); err != nil {
			return fmt.Errorf("flag suspect message: %w", err)
		}
	}
	return nil
}

func excerpt(content string) string {
	const max = 200
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "…"
}
