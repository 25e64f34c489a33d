// Package testutil provides shared test doubles.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"gatekeeper/internal/platform"
)

// Call is one recorded platform client invocation.
type Call struct {
	Method string
	ChatID int64
	UserID int64
	// MessageID is set for message-scoped calls.
	MessageID int
	// Perms is set for RestrictMember calls.
	Perms platform.Permissions
	// Text is set for SendMessage and AnswerCallback calls.
	Text string
}

// FakePlatform is a recording platform.Client. Behavior can be overridden
// per method via the function fields; unset fields succeed.
type FakePlatform struct {
	mu    sync.Mutex
	calls []Call

	nextMessageID int

	SendMessageFn    func(ctx context.Context, chatID int64, text string, buttons []platform.Button) (int, error)
	DeleteMessageFn  func(ctx context.Context, chatID int64, messageID int) error
	RestrictMemberFn func(ctx context.Context, chatID, userID int64, perms platform.Permissions) error
	KickMemberFn     func(ctx context.Context, chatID, userID int64) error
	UnbanMemberFn    func(ctx context.Context, chatID, userID int64) error
	AnswerCallbackFn func(ctx context.Context, callbackID, text string) error
	GetAdminsFn      func(ctx context.Context, chatID int64) ([]int64, error)
	GetUpdatesFn     func(ctx context.Context, offset int64, timeoutSeconds int) ([]platform.Update, error)
}

// NewFakePlatform returns a FakePlatform whose SendMessage allocates
// sequential message ids starting at 1000.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{nextMessageID: 1000}
}

func (f *FakePlatform) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Calls returns a snapshot of all recorded calls.
func (f *FakePlatform) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls for one method.
func (f *FakePlatform) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// SendMessage records the call and returns a fresh message id.
func (f *FakePlatform) SendMessage(ctx context.Context, chatID int64, text string, buttons []platform.Button) (int, error) {
	if f.SendMessageFn != nil {
		id, err := f.SendMessageFn(ctx, chatID, text, buttons)
		if err != nil {
			return 0, err
		}
		f.record(Call{Method: "SendMessage", ChatID: chatID, MessageID: id, Text: text})
		return id, nil
	}
	f.mu.Lock()
	f.nextMessageID++
	id := f.nextMessageID
	f.mu.Unlock()
	f.record(Call{Method: "SendMessage", ChatID: chatID, MessageID: id, Text: text})
	return id, nil
}

func (f *FakePlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if f.DeleteMessageFn != nil {
		if err := f.DeleteMessageFn(ctx, chatID, messageID); err != nil {
			return err
		}
	}
	f.record(Call{Method: "DeleteMessage", ChatID: chatID, MessageID: messageID})
	return nil
}

func (f *FakePlatform) RestrictMember(ctx context.Context, chatID, userID int64, perms platform.Permissions) error {
	if f.RestrictMemberFn != nil {
		if err := f.RestrictMemberFn(ctx, chatID, userID, perms); err != nil {
			return err
		}
	}
	f.record(Call{Method: "RestrictMember", ChatID: chatID, UserID: userID, Perms: perms})
	return nil
}

func (f *FakePlatform) KickMember(ctx context.Context, chatID, userID int64) error {
	if f.KickMemberFn != nil {
		if err := f.KickMemberFn(ctx, chatID, userID); err != nil {
			return err
		}
	}
	f.record(Call{Method: "KickMember", ChatID: chatID, UserID: userID})
	return nil
}

func (f *FakePlatform) UnbanMember(ctx context.Context, chatID, userID int64) error {
	if f.UnbanMemberFn != nil {
		if err := f.UnbanMemberFn(ctx, chatID, userID); err != nil {
			return err
		}
	}
	f.record(Call{Method: "UnbanMember", ChatID: chatID, UserID: userID})
	return nil
}

func (f *FakePlatform) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if f.AnswerCallbackFn != nil {
		if err := f.AnswerCallbackFn(ctx, callbackID, text); err != nil {
			return err
		}
	}
	f.record(Call{Method: "AnswerCallback", Text: text})
	return nil
}

func (f *FakePlatform) GetAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	f.record(Call{Method: "GetAdmins", ChatID: chatID})
	if f.GetAdminsFn != nil {
		return f.GetAdminsFn(ctx, chatID)
	}
	return nil, fmt.Errorf("GetAdminsFn not configured")
}

func (f *FakePlatform) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]platform.Update, error) {
	if f.GetUpdatesFn != nil {
		return f.GetUpdatesFn(ctx, offset, timeoutSeconds)
	}
	return nil, nil
}
