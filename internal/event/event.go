// Package event models the notifications delivered by a fetchEvents long poll.
// An Event is immutable once built: a Kind discriminator plus an Attributes
// store that is only ever read through presence-checked accessors.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the event discriminator sent in the "type" field of a fetched event.
type Kind string

const (
	KindMyInfo           Kind = "myInfo"
	KindPresence         Kind = "presence"
	KindBuddyList        Kind = "buddylist"
	KindTyping           Kind = "typing"
	KindIM               Kind = "im"
	KindDataIM           Kind = "dataIM"
	KindClientError      Kind = "clientError"
	KindSessionEnded     Kind = "sessionEnded"
	KindOfflineIM        Kind = "offlineIM"
	KindSentIM           Kind = "sentIM"
	KindSentDataIM       Kind = "sentDataIM"
	KindLifestream       Kind = "lifestream"
	KindUserAddedToBuddy Kind = "userAddedToBuddyList"
	KindAlert            Kind = "alert"
	KindService          Kind = "service"
	KindNotification     Kind = "notification"
)

var knownKinds = map[Kind]bool{
	KindMyInfo:           true,
	KindPresence:         true,
	KindBuddyList:        true,
	KindTyping:           true,
	KindIM:               true,
	KindDataIM:           true,
	KindClientError:      true,
	KindSessionEnded:     true,
	KindOfflineIM:        true,
	KindSentIM:           true,
	KindSentDataIM:       true,
	KindLifestream:       true,
	KindUserAddedToBuddy: true,
	KindAlert:            true,
	KindService:          true,
	KindNotification:     true,
}

// ErrUnknownKind is returned for a "type" value outside the closed Kind set.
var ErrUnknownKind = errors.New("unknown event kind")

// ParseKind validates a wire value against the known kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !knownKinds[k] {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Well-known attribute keys.
const (
	AttrMessage   = "message"
	AttrMessageID = "msgId"
	AttrStickerID = "stickerId"
	AttrSource    = "source"
	AttrAimID     = "aimId"
	AttrChatAttrs = "MChat_Attrs"
	AttrTyping    = "typingStatus"
	AttrRequester = "requester"
	AttrFriendly  = "friendly"
)

// TypingStatus values carried by typing events and accepted by setTyping.
type TypingStatus string

const (
	TypingLooking TypingStatus = "looking" // looking into the active dialog
	TypingActive  TypingStatus = "typing"  // started typing
	TypingTyped   TypingStatus = "typed"   // was typing and stopped
	TypingNone    TypingStatus = "none"    // erased everything typed
)

// Event is one decoded notification.
type Event struct {
	kind  Kind
	attrs Attributes
}

// New builds an Event. The attribute map is deep-copied.
func New(kind Kind, data map[string]any) Event {
	return Event{kind: kind, attrs: NewAttributes(data)}
}

// Kind returns the event discriminator.
func (e Event) Kind() Kind { return e.kind }

// Attributes returns the read-only attribute store.
func (e Event) Attributes() Attributes { return e.attrs }

// Message returns the "message" attribute when it is a string.
func (e Event) Message() (string, bool) { return e.attrs.String(AttrMessage) }

// MessageID returns the "msgId" attribute. Numeric ids are rendered in decimal.
func (e Event) MessageID() (string, bool) {
	if s, ok := e.attrs.String(AttrMessageID); ok {
		return s, true
	}
	if n, ok := e.attrs.Int(AttrMessageID); ok {
		return fmt.Sprintf("%d", n), true
	}
	return "", false
}

// SourceID returns source.aimId, the sender of a message event.
func (e Event) SourceID() (string, bool) {
	src, ok := e.attrs.Map(AttrSource)
	if !ok {
		return "", false
	}
	return src.String(AttrAimID)
}

func (e Event) String() string {
	return fmt.Sprintf("Event(%s, %d attrs)", e.kind, e.attrs.Len())
}

// wireEvent is the JSON shape of one entry in the fetchEvents "events" array.
type wireEvent struct {
	Type      string         `json:"type"`
	EventData map[string]any `json:"eventData"`
}

// Decode parses a single fetched event. Unknown kinds return ErrUnknownKind.
func Decode(raw json.RawMessage) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	kind, err := ParseKind(w.Type)
	if err != nil {
		return Event{}, err
	}
	return New(kind, w.EventData), nil
}
