package filter

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/goicq/internal/event"
)

var linkPattern = regexp.MustCompile(`(?i)^https?://\S+$`)

// messageText is only called behind Message, so presence is already known.
func messageText(ev event.Event) string {
	text, _ := ev.Message()
	return strings.TrimSpace(text)
}

func isMessage(ev event.Event) bool {
	_, ok := ev.Message()
	return ok
}

func startsWithCommandPrefix(ev event.Event) bool {
	text := messageText(ev)
	return strings.HasPrefix(text, "/") || strings.HasPrefix(text, ".")
}

func hasSticker(ev event.Event) bool {
	return ev.Attributes().Has(event.AttrStickerID)
}

func isFileLink(ev event.Event) bool {
	return FileURLPattern.MatchString(messageText(ev))
}

func isLink(ev event.Event) bool {
	return linkPattern.MatchString(messageText(ev))
}

func hasChatAttrs(ev event.Event) bool {
	return ev.Attributes().Has(event.AttrChatAttrs)
}

func mediaIs(kind MediaKind) Predicate {
	return Func(func(ev event.Event) bool {
		id, ok := ExtractFileID(messageText(ev))
		if !ok {
			return false
		}
		f, err := ParseFileID(id)
		return err == nil && f.Kind == kind
	})
}

// Built-in primitives. Each is composed from the earlier ones, so the field
// checks are made once, by Message.
var (
	Message = Func(isMessage)
	Command = And(Message, Func(startsWithCommandPrefix))
	Sticker = Func(hasSticker)
	File    = And(Message, Func(isFileLink))
	Image   = And(File, mediaIs(MediaImage))
	Video   = And(File, mediaIs(MediaVideo))
	Audio   = And(File, mediaIs(MediaAudio))
	Link    = All(Message, Func(isLink), Not(File))
	Text    = And(Message, Not(Any(Command, Sticker, File, Link)))
	Chat    = And(Message, Func(hasChatAttrs))
)

// Regexp matches messages whose trimmed text matches re.
func Regexp(re *regexp.Regexp) Predicate {
	return And(Message, Func(func(ev event.Event) bool {
		return re.MatchString(messageText(ev))
	}))
}

// From matches messages sent by one of the given aimIds.
func From(aimIDs ...string) Predicate {
	set := make(map[string]bool, len(aimIDs))
	for _, id := range aimIDs {
		set[id] = true
	}
	return Func(func(ev event.Event) bool {
		src, ok := ev.SourceID()
		return ok && set[src]
	})
}
