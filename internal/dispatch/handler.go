package dispatch

import (
	"context"

	"github.com/nextlevelbuilder/goicq/internal/event"
	"github.com/nextlevelbuilder/goicq/internal/filter"
)

// Action is the work a handler performs for an accepted event.
type Action func(ctx context.Context, ev event.Event) error

type options struct {
	name   string
	filter filter.Predicate
	stop   bool
}

// Option customizes a handler.
type Option func(*options)

// WithName overrides the name used in logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithFilter adds a predicate the event must also satisfy.
func WithFilter(p filter.Predicate) Option {
	return func(o *options) { o.filter = p }
}

// WithStop makes the handler end dispatch after its action runs.
func WithStop() Option {
	return func(o *options) { o.stop = true }
}

func buildOptions(defaultName string, opts []Option) options {
	o := options{name: defaultName}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) matches(ev event.Event) bool {
	return o.filter == nil || o.filter.Match(ev)
}

func (o options) outcome() Outcome {
	if o.stop {
		return Stop
	}
	return Continue
}

func run(ctx context.Context, action Action, ev event.Event) error {
	if action == nil {
		return nil
	}
	return action(ctx, ev)
}

// KindHandler accepts every event of one kind.
type KindHandler struct {
	kind   event.Kind
	action Action
	opts   options
}

func NewKindHandler(kind event.Kind, action Action, opts ...Option) *KindHandler {
	return &KindHandler{
		kind:   kind,
		action: action,
		opts:   buildOptions(string(kind), opts),
	}
}

// NewMessageHandler accepts im events matching p. A nil p accepts them all.
func NewMessageHandler(p filter.Predicate, action Action, opts ...Option) *KindHandler {
	h := NewKindHandler(event.KindIM, action, append([]Option{WithName("message")}, opts...)...)
	if p != nil {
		if h.opts.filter != nil {
			h.opts.filter = filter.And(p, h.opts.filter)
		} else {
			h.opts.filter = p
		}
	}
	return h
}

func NewTypingHandler(action Action, opts ...Option) *KindHandler {
	return NewKindHandler(event.KindTyping, action, opts...)
}

func NewSentIMHandler(action Action, opts ...Option) *KindHandler {
	return NewKindHandler(event.KindSentIM, action, opts...)
}

func NewUserAddedHandler(action Action, opts ...Option) *KindHandler {
	return NewKindHandler(event.KindUserAddedToBuddy, action, opts...)
}

func NewMyInfoHandler(action Action, opts ...Option) *KindHandler {
	return NewKindHandler(event.KindMyInfo, action, opts...)
}

func (h *KindHandler) Name() string     { return h.opts.name }
func (h *KindHandler) Stage() Stage     { return StagePredicate }
func (h *KindHandler) Kind() event.Kind { return h.kind }

func (h *KindHandler) Check(ev event.Event, _ *Snapshot) Verdict {
	if ev.Kind() == h.kind && h.opts.matches(ev) {
		return Accept
	}
	return Pass
}

func (h *KindHandler) Handle(ctx context.Context, ev event.Event) (Outcome, error) {
	if err := run(ctx, h.action, ev); err != nil {
		return Continue, err
	}
	return h.opts.outcome(), nil
}

// DefaultHandler runs only when no other non-default handler accepted the
// event, then stops dispatch.
type DefaultHandler struct {
	action Action
	opts   options
}

func NewDefaultHandler(action Action, opts ...Option) *DefaultHandler {
	return &DefaultHandler{action: action, opts: buildOptions("default", opts)}
}

func (h *DefaultHandler) Name() string { return h.opts.name }
func (h *DefaultHandler) Stage() Stage { return StageFallback }

func (h *DefaultHandler) Check(ev event.Event, snap *Snapshot) Verdict {
	if !h.opts.matches(ev) {
		return Pass
	}
	if snap.AnyAccepted(func(other Handler) bool { return other.Stage() != StageFallback }) {
		return Pass
	}
	return Accept
}

func (h *DefaultHandler) Handle(ctx context.Context, ev event.Event) (Outcome, error) {
	return Stop, run(ctx, h.action, ev)
}
