package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gatekeeper/internal/logging"
	"gatekeeper/internal/platform"
)

func (r *Router) handleCommand(ctx context.Context, msg *platform.Message) error {
	if msg.From == nil {
		return nil
	}

	text := strings.ToLower(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		return r.commandStart(ctx, msg)
	case strings.HasPrefix(text, "/admins"):
		return r.commandAdmins(ctx, msg)
	case strings.HasPrefix(text, "/captcha"):
		return r.commandCaptcha(ctx, msg)
	case strings.HasPrefix(text, "!report"):
		return r.commandReport(ctx, msg)
	}
	return nil
}

// commandStart acknowledges an admin opening a private chat with the bot, so
// moderation cases can be forwarded there.
func (r *Router) commandStart(ctx context.Context, msg *platform.Message) error {
	if msg.Chat.Type != "private" || !r.IsAdmin(msg.From.ID) {
		return nil
	}
	text := fmt.Sprintf(
		"You are an admin of %s. Flagged messages and member reports will be forwarded here.",
		r.chatName,
	)
	if _, err := r.client.SendMessage(ctx, msg.Chat.ID, text, nil); err != nil {
		return err
	}
	logging.Logger.InfoContext(ctx, "admin initiated private chat",
		slog.Int64("admin_id", msg.From.ID))
	return nil
}

// commandAdmins refreshes the administrator set from the platform.
func (r *Router) commandAdmins(ctx context.Context, msg *platform.Message) error {
	if msg.Chat.Type != "private" || !r.IsAdmin(msg.From.ID) {
		return nil
	}
	ids, err := r.RefreshAdmins(ctx)
	if err != nil {
		return err
	}
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, strconv.FormatInt(id, 10))
	}
	text := "Administrator list refreshed:\n" + strings.Join(lines, ",\n")
	if _, err := r.client.SendMessage(ctx, msg.Chat.ID, text, nil); err != nil {
		return err
	}
	logging.Logger.InfoContext(ctx, "admin list refreshed",
		slog.Int64("admin_id", msg.From.ID),
		slog.Int("admins", len(ids)))
	return nil
}

// commandCaptcha flips the challenge-enabled toggle at runtime.
func (r *Router) commandCaptcha(ctx context.Context, msg *platform.Message) error {
	if !r.IsAdmin(msg.From.ID) {
		return nil
	}
	enabled, err := r.flags.ToggleCaptcha(ctx)
	if err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	_, err = r.client.SendMessage(ctx, msg.Chat.ID, "Captcha: "+state, nil)
	return err
}

// commandReport flags the replied-to message into the moderation queue. The
// trigger message is deleted either way; a non-reply report is just noise.
func (r *Router) commandReport(ctx context.Context, msg *platform.Message) error {
	if msg.Chat.ID != r.chatID {
		return nil
	}
	defer func() {
		if err := r.client.DeleteMessage(ctx, msg.Chat.ID, msg.ID); err != nil {
			logging.Logger.InfoContext(ctx, "could not delete report trigger", slog.Any("error", err))
		}
	}()

	source := msg.ReplyToMessage
	if source == nil || source.From == nil {
		logging.Logger.InfoContext(ctx, "report command without reply ignored",
			slog.Int64("user_id", msg.From.ID))
		return nil
	}
	return r.queue.Flag(ctx, source.ID, *source.From, source.Content())
}
