// Package platform defines the messaging-platform collaborator boundary:
// the update types the platform delivers and the client operations the
// gating core consumes.
package platform

// User identifies a chat participant as delivered by the platform.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the participant's human-readable name for log lines
// and announcements.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Attachment marks a media payload on a message. Only its presence matters
// for routing; file contents are never fetched.
type Attachment struct {
	FileID string `json:"file_id"`
}

// Message is an inbound chat message.
type Message struct {
	ID             int      `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	Chat           Chat     `json:"chat"`
	Text           string   `json:"text,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`
	NewChatMembers []User   `json:"new_chat_members,omitempty"`

	Sticker   *Attachment  `json:"sticker,omitempty"`
	Photo     []Attachment `json:"photo,omitempty"`
	Audio     *Attachment  `json:"audio,omitempty"`
	Document  *Attachment  `json:"document,omitempty"`
	Video     *Attachment  `json:"video,omitempty"`
	Voice     *Attachment  `json:"voice,omitempty"`
	VideoNote *Attachment  `json:"video_note,omitempty"`
}

// Content returns the message's textual payload, falling back to the caption
// for media messages.
func (m *Message) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// HasMedia reports whether the message carries a non-textual payload. Media
// messages count as content events even without a caption.
func (m *Message) HasMedia() bool {
	return m.Sticker != nil || len(m.Photo) > 0 || m.Audio != nil ||
		m.Document != nil || m.Video != nil || m.Voice != nil || m.VideoNote != nil
}

// CallbackQuery is an interactive button response.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Update is a single inbound platform event.
type Update struct {
	ID            int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Permissions is the fine-grained capability set applied when restricting a
// participant.
type Permissions struct {
	SendMessages    bool `json:"can_send_messages"`
	SendMedia       bool `json:"can_send_media_messages"`
	SendOther       bool `json:"can_send_other_messages"`
	AddLinkPreviews bool `json:"can_add_web_page_previews"`
}

// NoPermissions removes every capability (pre-challenge gating).
func NoPermissions() Permissions {
	return Permissions{}
}

// FullPermissions grants every capability (trust promotion, restore decision).
func FullPermissions() Permissions {
	return Permissions{
		SendMessages:    true,
		SendMedia:       true,
		SendOther:       true,
		AddLinkPreviews: true,
	}
}

// BaselinePermissions grants text and media but keeps inline-bot output
// restricted; applied after a passed captcha while the participant is still
// inside the monitored message window.
func BaselinePermissions() Permissions {
	return Permissions{
		SendMessages:    true,
		SendMedia:       true,
		SendOther:       false,
		AddLinkPreviews: true,
	}
}

// Button is one interactive response affordance attached to a message.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}
