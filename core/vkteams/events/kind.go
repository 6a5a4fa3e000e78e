package events

import "fmt"

// Kind is the wire "type" of an inbound event.
type Kind string

const (
	NewMessage      Kind = "newMessage"
	EditedMessage   Kind = "editedMessage"
	DeletedMessage  Kind = "deletedMessage"
	PinnedMessage   Kind = "pinnedMessage"
	UnpinnedMessage Kind = "unpinnedMessage"
	NewChatMembers  Kind = "newChatMembers"
	LeftChatMembers Kind = "leftChatMembers"
	ChangedChatInfo Kind = "changedChatInfo"
	CallbackQuery   Kind = "callbackQuery"
)

var kinds = []Kind{
	NewMessage, EditedMessage, DeletedMessage, PinnedMessage, UnpinnedMessage,
	NewChatMembers, LeftChatMembers, ChangedChatInfo, CallbackQuery,
}

// Kinds returns every known kind in wire order.
func Kinds() []Kind { return append([]Kind(nil), kinds...) }

// ParseKind validates a wire type string.
func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &DecodeError{Kind: Kind(s), Err: fmt.Errorf("unknown event type %q", s)}
}

// IsMessage reports kinds decoded into *Message.
func (k Kind) IsMessage() bool {
	return k == NewMessage || k == EditedMessage || k == PinnedMessage
}

// ChatType is the "type" of a chat.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// PartType is the "type" of a message part.
type PartType string

const (
	PartFile    PartType = "file"
	PartSticker PartType = "sticker"
	PartMention PartType = "mention"
	PartVoice   PartType = "voice"
	PartForward PartType = "forward"
	PartReply   PartType = "reply"
)
