// Copyright 2024-2026 Aiku AI

package bridge

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// EventKind tags the internal event variant.
type EventKind int

const (
	// EventNewMessage is a message newly posted on a source channel.
	EventNewMessage EventKind = iota
	// EventEditedMessage is an in-place edit of an existing source message.
	EventEditedMessage
	// EventDeletedMessages is a batch deletion of source messages.
	EventDeletedMessages
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventEditedMessage:
		return "edited_message"
	case EventDeletedMessages:
		return "deleted_messages"
	default:
		return "unknown"
	}
}

// MediaRef points at a media attachment on the source network. The engine
// never touches the bytes; media download/upload is the media transformer's
// concern.
type MediaRef struct {
	ID       string
	Kind     string
	FileName string
	URL      string
}

// Event is the normalized, SDK-independent representation of a source
// network event. Both network clients translate their native event shapes
// into this type at the boundary, so the router and delivery coordinator
// never see either SDK's objects.
type Event struct {
	Kind      EventKind
	ChannelID int64
	MessageID int64
	Text      string
	ReplyToID int64
	Media     []MediaRef

	// DeletedIDs is only set for EventDeletedMessages.
	DeletedIDs []int64

	// CorrelationID ties all log lines produced while handling this event
	// together. Assigned once when the event enters the engine.
	CorrelationID string
}

// NewMessageEvent builds a normalized new-message event with a fresh
// correlation ID.
func NewMessageEvent(channelID, messageID int64, text string) *Event {
	return &Event{
		Kind:          EventNewMessage,
		ChannelID:     channelID,
		MessageID:     messageID,
		Text:          text,
		CorrelationID: NewCorrelationID(),
	}
}

// NewCorrelationID returns a short unique ID for log correlation.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// ExtractHashtags returns the set of hashtags present in the event text,
// lowercased and including the leading '#'. The result is computed once per
// event and threaded into both the allow and the deny evaluation.
func ExtractHashtags(evt *Event) map[string]struct{} {
	tags := make(map[string]struct{})
	runes := []rune(evt.Text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '#' {
			continue
		}
		j := i + 1
		for j < len(runes) && isTagRune(runes[j]) {
			j++
		}
		if j > i+1 {
			tags[strings.ToLower(string(runes[i:j]))] = struct{}{}
		}
		i = j - 1
	}
	return tags
}

func isTagRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
