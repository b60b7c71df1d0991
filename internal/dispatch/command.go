package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nextlevelbuilder/goicq/internal/event"
	"github.com/nextlevelbuilder/goicq/internal/filter"
)

// ParseCommand splits a command message into its name and the remaining
// text. The one-char prefix and any "@botname" suffix are removed.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" || (text[0] != '/' && text[0] != '.') {
		return "", "", false
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	name = head[1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return name, strings.TrimSpace(rest), true
}

// CommandHandler accepts im commands whose name is one of its names, compared
// case-insensitively. With no names it accepts every command.
type CommandHandler struct {
	names  []string
	action Action
	opts   options
}

func NewCommandHandler(names []string, action Action, opts ...Option) *CommandHandler {
	lower := make([]string, 0, len(names))
	for _, n := range names {
		lower = append(lower, strings.ToLower(strings.TrimLeft(n, "/.")))
	}
	defaultName := "command"
	if len(lower) > 0 {
		defaultName = "command(" + strings.Join(lower, ",") + ")"
	}
	return &CommandHandler{names: lower, action: action, opts: buildOptions(defaultName, opts)}
}

func (h *CommandHandler) Name() string { return h.opts.name }
func (h *CommandHandler) Stage() Stage { return StagePredicate }

// Commands returns the lower-cased names the handler answers to.
func (h *CommandHandler) Commands() []string { return append([]string(nil), h.names...) }

func (h *CommandHandler) Check(ev event.Event, _ *Snapshot) Verdict {
	if ev.Kind() != event.KindIM || !filter.Command.Match(ev) || !h.opts.matches(ev) {
		return Pass
	}
	if len(h.names) == 0 {
		return Accept
	}
	text, _ := ev.Message()
	name, _, _ := ParseCommand(text)
	for _, n := range h.names {
		if strings.EqualFold(name, n) {
			return Accept
		}
	}
	return Pass
}

func (h *CommandHandler) Handle(ctx context.Context, ev event.Event) (Outcome, error) {
	if err := run(ctx, h.action, ev); err != nil {
		return Continue, err
	}
	return h.opts.outcome(), nil
}

// UnknownCommandHandler accepts im commands no CommandHandler accepted, then
// stops dispatch so a default handler cannot also answer.
type UnknownCommandHandler struct {
	action Action
	opts   options
}

func NewUnknownCommandHandler(action Action, opts ...Option) *UnknownCommandHandler {
	return &UnknownCommandHandler{action: action, opts: buildOptions("unknown-command", opts)}
}

func (h *UnknownCommandHandler) Name() string { return h.opts.name }
func (h *UnknownCommandHandler) Stage() Stage { return StageCommandFallback }

func (h *UnknownCommandHandler) Check(ev event.Event, snap *Snapshot) Verdict {
	if ev.Kind() != event.KindIM || !filter.Command.Match(ev) || !h.opts.matches(ev) {
		return Pass
	}
	known := snap.AnyAccepted(func(other Handler) bool {
		_, ok := other.(*CommandHandler)
		return ok
	})
	if known {
		return Pass
	}
	return Accept
}

func (h *UnknownCommandHandler) Handle(ctx context.Context, ev event.Event) (Outcome, error) {
	return Stop, run(ctx, h.action, ev)
}

// Sender delivers a text message. *botapi.Client implements it.
type Sender interface {
	SendIM(ctx context.Context, target, text string) error
}

// FeedbackOptions configures NewFeedbackCommandHandler. Message is a format
// string receiving the sender id and the feedback text.
type FeedbackOptions struct {
	Target     string
	Command    string
	Message    string
	Reply      string
	ErrorReply string
}

const (
	defaultFeedbackCommand = "feedback"
	defaultFeedbackMessage = "Feedback from '%s': '%s'."
	defaultFeedbackReply   = "Got it!"
)

// NewFeedbackCommandHandler relays "/feedback <text>" to a fixed target. The
// sender gets Reply when it is set. An empty <text> is not relayed; the sender
// gets ErrorReply instead, if set.
func NewFeedbackCommandHandler(sender Sender, fo FeedbackOptions, opts ...Option) *CommandHandler {
	if fo.Command == "" {
		fo.Command = defaultFeedbackCommand
	}
	if fo.Message == "" {
		fo.Message = defaultFeedbackMessage
	}
	action := func(ctx context.Context, ev event.Event) error {
		source, ok := ev.SourceID()
		if !ok {
			return errors.New("feedback: event has no source")
		}
		text, _ := ev.Message()
		_, body, _ := ParseCommand(text)

		if body == "" {
			if fo.ErrorReply == "" {
				return nil
			}
			return sender.SendIM(ctx, source, fo.ErrorReply)
		}
		if err := sender.SendIM(ctx, fo.Target, fmt.Sprintf(fo.Message, source, body)); err != nil {
			return fmt.Errorf("feedback relay: %w", err)
		}
		if fo.Reply != "" {
			return sender.SendIM(ctx, source, fo.Reply)
		}
		return nil
	}
	return NewCommandHandler([]string{fo.Command}, action, append([]Option{WithName("feedback")}, opts...)...)
}

// DefaultFeedbackOptions returns the options used by the stock feedback
// command.
func DefaultFeedbackOptions(target string) FeedbackOptions {
	return FeedbackOptions{
		Target:  target,
		Command: defaultFeedbackCommand,
		Message: defaultFeedbackMessage,
		Reply:   defaultFeedbackReply,
	}
}
