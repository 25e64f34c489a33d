package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gatekeeper/internal/observability"
)

// TelegramClient implements Client against the Telegram Bot API.
type TelegramClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewTelegramClient builds a client for the given API base URL and bot token.
func NewTelegramClient(baseURL, token string) *TelegramClient {
	return &TelegramClient{
		baseURL: baseURL,
		token:   token,
		// Long-poll requests hold the connection open for the poll timeout,
		// so the transport timeout must comfortably exceed it.
		http: &http.Client{Timeout: 90 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *TelegramClient) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s: encode params: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		observability.PlatformErrors.WithLabelValues(method).Inc()
		return &Error{Method: method, Description: err.Error()}
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		observability.PlatformErrors.WithLabelValues(method).Inc()
		return &Error{Method: method, Code: resp.StatusCode, Description: "malformed response"}
	}
	if !api.OK {
		observability.PlatformErrors.WithLabelValues(method).Inc()
		return &Error{Method: method, Code: api.ErrorCode, Description: api.Description}
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// SendMessage posts text with optional inline buttons and returns the
// message id.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID int64, text string, buttons []Button) (int, error) {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	if len(buttons) > 0 {
		params["reply_markup"] = map[string]any{
			"inline_keyboard": [][]Button{buttons},
		}
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// DeleteMessage removes a message from the chat.
func (c *TelegramClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// RestrictMember applies a capability set to a chat member.
func (c *TelegramClient) RestrictMember(ctx context.Context, chatID, userID int64, perms Permissions) error {
	return c.call(ctx, "restrictChatMember", map[string]any{
		"chat_id":     chatID,
		"user_id":     userID,
		"permissions": perms,
	}, nil)
}

// KickMember bans a member from the chat.
func (c *TelegramClient) KickMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "banChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, nil)
}

// UnbanMember lifts a ban so the member may rejoin.
func (c *TelegramClient) UnbanMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "unbanChatMember", map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": true,
	}, nil)
}

// AnswerCallback acknowledges an interactive response.
func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	}, nil)
}

// GetAdmins returns the ids of the chat's administrators.
func (c *TelegramClient) GetAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	var members []struct {
		User User `json:"user"`
	}
	if err := c.call(ctx, "getChatAdministrators", map[string]any{"chat_id": chatID}, &members); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.User.ID)
	}
	return ids, nil
}

// GetUpdates long-polls for inbound updates past the given offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": timeoutSeconds,
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
