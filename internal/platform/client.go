package platform

import (
	"context"
	"fmt"
)

// Client is the messaging-platform collaborator consumed by the gating core.
// Every call may fail with a transient platform error; callers treat such a
// failure as "this participant's action did not take effect" and continue
// with the rest of the batch.
type Client interface {
	// SendMessage posts text to a chat, optionally with interactive buttons,
	// and returns the new message's id.
	SendMessage(ctx context.Context, chatID int64, text string, buttons []Button) (int, error)

	// DeleteMessage removes a message from a chat.
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// RestrictMember applies the given capability set to a participant.
	RestrictMember(ctx context.Context, chatID, userID int64, perms Permissions) error

	// KickMember bans a participant from the chat.
	KickMember(ctx context.Context, chatID, userID int64) error

	// UnbanMember lifts a ban so the participant may rejoin.
	UnbanMember(ctx context.Context, chatID, userID int64) error

	// AnswerCallback acknowledges an interactive response with an
	// informational note shown to the actor.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// GetAdmins returns the ids of the chat's current administrators.
	GetAdmins(ctx context.Context, chatID int64) ([]int64, error)

	// GetUpdates long-polls the platform for inbound updates with ids
	// greater than offset.
	GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error)
}

// Error is a failed platform API call.
type Error struct {
	Method      string
	Code        int
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("platform %s failed: %s (code %d)", e.Method, e.Description, e.Code)
}
