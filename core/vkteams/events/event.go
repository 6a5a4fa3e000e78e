// Package events decodes VK Teams inbound events into typed variants.
package events

import (
	"encoding/json"

	"github.com/m3rciful/vkbot/core/vkteams/format"
)

// Event is one of *Message, *MessageRef, *Members, *ChatInfoChanged or *Callback.
type Event interface {
	Kind() Kind
	// ID is the eventId of the envelope, 0 when decoded without one.
	ID() int64
	Chat() ChatInfo
	// Raw returns a copy of the payload bytes.
	Raw() json.RawMessage
	sealed()
}

// ChatInfo identifies the chat an event belongs to.
type ChatInfo struct {
	ChatID string   `json:"chatId"`
	Type   ChatType `json:"type"`
	Title  string   `json:"title,omitempty"`
}

// UserInfo describes an account.
type UserInfo struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Nick      string `json:"nick,omitempty"`
}

// Part is an attachment or reference embedded in a message.
type Part struct {
	Type    PartType        `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// FilePayload is the payload of file, sticker and voice parts.
type FilePayload struct {
	FileID  string `json:"fileId"`
	Type    string `json:"type,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// File decodes a file-like payload.
func (p Part) File() (FilePayload, bool) {
	var f FilePayload
	if p.Type != PartFile && p.Type != PartSticker && p.Type != PartVoice {
		return f, false
	}
	if err := json.Unmarshal(p.Payload, &f); err != nil || f.FileID == "" {
		return f, false
	}
	return f, true
}

type header struct {
	kind Kind
	id   int64
	chat ChatInfo
	raw  []byte
}

func (h *header) Kind() Kind     { return h.kind }
func (h *header) ID() int64      { return h.id }
func (h *header) Chat() ChatInfo { return h.chat }
func (h *header) sealed()        {}

func (h *header) Raw() json.RawMessage {
	return append(json.RawMessage(nil), h.raw...)
}

// Message is a new, edited or pinned message.
type Message struct {
	header
	From      *UserInfo
	Text      string
	Format    format.Format
	Timestamp int64
	MsgID     string
	Parts     []Part
}

// HasPart reports whether the message carries a part of type t.
func (m *Message) HasPart(t PartType) bool {
	for _, p := range m.Parts {
		if p.Type == t {
			return true
		}
	}
	return false
}

// MessageRef is a deleted or unpinned message.
type MessageRef struct {
	header
	Timestamp int64
	MsgID     string
}

// Members is a join or leave event.
type Members struct {
	header
	Users []UserInfo
	// By is the user who added or removed the members, when known.
	By *UserInfo
}

// ChatInfoChanged reports chat metadata updates.
type ChatInfoChanged struct {
	header
}

// Callback is a button press on an inline keyboard.
type Callback struct {
	header
	QueryID      string
	From         UserInfo
	CallbackData string
	// Message is the message the keyboard is attached to.
	Message *Message
}

// Text returns the text of message events and of the message under a callback.
func Text(e Event) string {
	switch v := e.(type) {
	case *Message:
		return v.Text
	case *Callback:
		if v.Message != nil {
			return v.Message.Text
		}
	}
	return ""
}

// Sender returns the acting user of e, if the event names one.
func Sender(e Event) (UserInfo, bool) {
	switch v := e.(type) {
	case *Message:
		if v.From != nil {
			return *v.From, true
		}
	case *Callback:
		return v.From, true
	case *Members:
		if v.By != nil {
			return *v.By, true
		}
	}
	return UserInfo{}, false
}

// UserKey is the identity used for per-user state: the sender id, or the chat id when there is no sender.
func UserKey(e Event) string {
	if u, ok := Sender(e); ok && u.UserID != "" {
		return u.UserID
	}
	return e.Chat().ChatID
}
