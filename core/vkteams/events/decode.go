package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/m3rciful/vkbot/core/vkteams/format"
)

// Envelope is one element of the events/get "events" array.
type Envelope struct {
	EventID int64           `json:"eventId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireMessage struct {
	Chat      *ChatInfo     `json:"chat"`
	From      *UserInfo     `json:"from"`
	Text      string        `json:"text"`
	Format    format.Format `json:"format"`
	Timestamp int64         `json:"timestamp"`
	MsgID     string        `json:"msgId"`
	Parts     []Part        `json:"parts"`
}

type wireMembers struct {
	Chat        *ChatInfo  `json:"chat"`
	NewMembers  []UserInfo `json:"newMembers"`
	AddedBy     *UserInfo  `json:"addedBy"`
	LeftMembers []UserInfo `json:"leftMembers"`
	RemovedBy   *UserInfo  `json:"removedBy"`
}

type wireCallback struct {
	QueryID      *string         `json:"queryId"`
	From         *UserInfo       `json:"from"`
	Message      json.RawMessage `json:"message"`
	CallbackData *string         `json:"callbackData"`
}

// DecodeEnvelope decodes env and stamps the event id.
func DecodeEnvelope(env Envelope) (Event, error) {
	kind, err := ParseKind(env.Type)
	if err != nil {
		return nil, err
	}
	return decode(kind, env.EventID, env.Payload)
}

// Decode turns a raw payload into the variant for kind.
func Decode(kind Kind, raw json.RawMessage) (Event, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return decode(kind, 0, raw)
}

func decode(kind Kind, id int64, raw json.RawMessage) (Event, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, missing(kind, "payload")
	}
	h := header{kind: kind, id: id, raw: append([]byte(nil), raw...)}

	switch kind {
	case NewMessage, EditedMessage, PinnedMessage:
		msg, err := decodeMessage(h, raw)
		if err != nil {
			return nil, err
		}
		return msg, nil

	case DeletedMessage, UnpinnedMessage:
		var w wireMessage
		if err := unmarshal(kind, raw, &w); err != nil {
			return nil, err
		}
		if err := requireChat(kind, w.Chat, "chat"); err != nil {
			return nil, err
		}
		h.chat = *w.Chat
		return &MessageRef{header: h, Timestamp: w.Timestamp, MsgID: w.MsgID}, nil

	case NewChatMembers, LeftChatMembers:
		var w wireMembers
		if err := unmarshal(kind, raw, &w); err != nil {
			return nil, err
		}
		if err := requireChat(kind, w.Chat, "chat"); err != nil {
			return nil, err
		}
		h.chat = *w.Chat
		ev := &Members{header: h, Users: w.NewMembers, By: w.AddedBy}
		if kind == LeftChatMembers {
			if w.LeftMembers != nil {
				ev.Users = w.LeftMembers
			}
			if w.RemovedBy != nil {
				ev.By = w.RemovedBy
			}
		}
		return ev, nil

	case ChangedChatInfo:
		var w wireMessage
		if err := unmarshal(kind, raw, &w); err != nil {
			return nil, err
		}
		if err := requireChat(kind, w.Chat, "chat"); err != nil {
			return nil, err
		}
		h.chat = *w.Chat
		return &ChatInfoChanged{header: h}, nil

	case CallbackQuery:
		cb, err := decodeCallback(h, raw)
		if err != nil {
			return nil, err
		}
		return cb, nil
	}
	return nil, &DecodeError{Kind: kind, Err: fmt.Errorf("unknown event type %q", kind)}
}

func decodeMessage(h header, raw json.RawMessage) (*Message, error) {
	var w wireMessage
	if err := unmarshal(h.kind, raw, &w); err != nil {
		return nil, err
	}
	if err := requireChat(h.kind, w.Chat, "chat"); err != nil {
		return nil, err
	}
	h.chat = *w.Chat
	return &Message{
		header:    h,
		From:      w.From,
		Text:      w.Text,
		Format:    w.Format,
		Timestamp: w.Timestamp,
		MsgID:     w.MsgID,
		Parts:     w.Parts,
	}, nil
}

func decodeCallback(h header, raw json.RawMessage) (*Callback, error) {
	var w wireCallback
	if err := unmarshal(h.kind, raw, &w); err != nil {
		return nil, err
	}
	switch {
	case w.QueryID == nil:
		return nil, missing(h.kind, "queryId")
	case w.From == nil || w.From.UserID == "":
		return nil, missing(h.kind, "from")
	case len(w.Message) == 0 || string(w.Message) == "null":
		return nil, missing(h.kind, "message")
	case w.CallbackData == nil:
		return nil, missing(h.kind, "callbackData")
	}

	msg, err := decodeMessage(header{kind: NewMessage, id: h.id, raw: append([]byte(nil), w.Message...)}, w.Message)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) && de.Field != "" {
			return nil, &DecodeError{Kind: h.kind, Field: "message." + de.Field, Err: de.Err}
		}
		return nil, &DecodeError{Kind: h.kind, Field: "message", Err: err}
	}
	h.chat = msg.Chat()
	return &Callback{
		header:       h,
		QueryID:      *w.QueryID,
		From:         *w.From,
		CallbackData: *w.CallbackData,
		Message:      msg,
	}, nil
}

func requireChat(kind Kind, c *ChatInfo, field string) error {
	if c == nil {
		return missing(kind, field)
	}
	if c.ChatID == "" {
		return missing(kind, field+".chatId")
	}
	return nil
}

func unmarshal(kind Kind, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Kind: kind, Err: err}
	}
	return nil
}
