package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goicq/internal/dedup"
	"github.com/nextlevelbuilder/goicq/internal/event"
	"github.com/nextlevelbuilder/goicq/internal/filter"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) action(name string) Action {
	return func(context.Context, event.Event) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return nil
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func im(text string) event.Event {
	return event.New(event.KindIM, map[string]any{
		"message": text,
		"msgId":   "m1",
		"source":  map[string]any{"aimId": "100"},
	})
}

func newScenario(rec *recorder) *Dispatcher {
	d := New(nil)
	d.Add(NewCommandHandler([]string{"help"}, rec.action("help")))
	d.Add(NewCommandHandler([]string{"status"}, rec.action("status")))
	d.Add(NewUnknownCommandHandler(rec.action("unknown")))
	d.Add(NewDefaultHandler(rec.action("default")))
	return d
}

func TestDispatch_CommandScenario(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"/foo", []string{"unknown"}},
		{"/help", []string{"help"}},
		{".STATUS now", []string{"status"}},
		{"/help@mybot", []string{"help"}},
		{"hello", []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			rec := &recorder{}
			newScenario(rec).Dispatch(context.Background(), im(tt.text))
			assert.Equal(t, tt.want, rec.got())
		})
	}
}

func TestDispatch_NonIMReachesOnlyDefault(t *testing.T) {
	rec := &recorder{}
	d := newScenario(rec)
	d.Dispatch(context.Background(), event.New(event.KindTyping, map[string]any{"typingStatus": "typing"}))
	assert.Equal(t, []string{"default"}, rec.got())
}

func TestDispatch_RegistrationOrder(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	d.Add(NewMessageHandler(nil, rec.action("first")))
	d.Add(NewMessageHandler(filter.Text, rec.action("second")))
	d.Add(NewMessageHandler(filter.Command, rec.action("never")))
	d.Add(NewMessageHandler(filter.Message, rec.action("third")))

	out := d.Dispatch(context.Background(), im("hi"))
	assert.Equal(t, Continue, out)
	assert.Equal(t, []string{"first", "second", "third"}, rec.got())
}

func TestDispatch_StopOutcomeEndsWalk(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	d.Add(NewMessageHandler(nil, rec.action("a")))
	d.Add(NewMessageHandler(nil, rec.action("b"), WithStop()))
	d.Add(NewMessageHandler(nil, rec.action("c")))

	out := d.Dispatch(context.Background(), im("hi"))
	assert.Equal(t, Stop, out)
	assert.Equal(t, []string{"a", "b"}, rec.got())
}

// cancelling accepts nothing and cancels every event.
type cancelling struct{}

func (cancelling) Name() string                         { return "cancel" }
func (cancelling) Stage() Stage                         { return StagePredicate }
func (cancelling) Check(event.Event, *Snapshot) Verdict { return Cancel }
func (cancelling) Handle(context.Context, event.Event) (Outcome, error) {
	panic("cancelled handler must not run")
}

func TestDispatch_CancelTruncates(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	d.Add(NewMessageHandler(nil, rec.action("before")))
	d.Add(&cancelling{})
	d.Add(NewMessageHandler(nil, rec.action("after")))
	d.Add(NewDefaultHandler(rec.action("default")))

	out := d.Dispatch(context.Background(), im("hi"))
	assert.Equal(t, Stop, out)
	assert.Equal(t, []string{"before"}, rec.got())
}

func TestDispatch_CancelSilencesEarlierFallbacks(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	def := NewDefaultHandler(rec.action("default"))
	unknown := NewUnknownCommandHandler(rec.action("unknown"))
	d.Add(def)
	d.Add(unknown)
	d.Add(&cancelling{})

	for _, text := range []string{"hi", "/nope"} {
		snap := d.Evaluate(im(text))
		assert.True(t, snap.Cancelled(), text)
		assert.Equal(t, Pass, snap.Verdict(def), text)
		assert.Equal(t, Pass, snap.Verdict(unknown), text)

		assert.Equal(t, Stop, d.Dispatch(context.Background(), im(text)), text)
	}
	assert.Empty(t, rec.got())
}

// tagged is a non-comparable handler value.
type tagged struct {
	tags []string
}

func (tagged) Name() string                         { return "tagged" }
func (tagged) Stage() Stage                         { return StagePredicate }
func (tagged) Check(event.Event, *Snapshot) Verdict { return Accept }
func (tagged) Handle(context.Context, event.Event) (Outcome, error) {
	return Continue, nil
}

func TestDispatch_NonComparableHandlerValue(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	h := tagged{tags: []string{"x"}}
	d.Add(h)
	d.Add(NewMessageHandler(nil, rec.action("after")))

	require.NotPanics(t, func() {
		snap := d.Evaluate(im("hi"))
		assert.Equal(t, Pass, snap.Verdict(h), "non-comparable values are never found by identity")
		assert.True(t, snap.AnyAccepted(nil))
		d.Dispatch(context.Background(), im("hi"))
	})
	assert.Equal(t, []string{"after"}, rec.got())

	require.NotPanics(t, func() {
		assert.False(t, d.Remove(tagged{tags: []string{"x"}}))
	})
	assert.Equal(t, 2, d.Len())
}

func TestDispatch_ErrorsAndPanicsAreIsolated(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	d.Add(NewMessageHandler(nil, func(context.Context, event.Event) error {
		return errors.New("boom")
	}))
	d.Add(NewMessageHandler(nil, func(context.Context, event.Event) error {
		panic("kaboom")
	}))
	d.Add(NewMessageHandler(filter.Func(func(event.Event) bool { panic("bad predicate") }), rec.action("never")))
	d.Add(NewMessageHandler(nil, rec.action("survivor")))

	var out Outcome
	require.NotPanics(t, func() { out = d.Dispatch(context.Background(), im("hi")) })
	assert.Equal(t, Continue, out)
	assert.Equal(t, []string{"survivor"}, rec.got())
}

// countingHandler counts Check calls.
type countingHandler struct {
	checks int
}

func (h *countingHandler) Name() string { return "counting" }
func (h *countingHandler) Stage() Stage { return StagePredicate }
func (h *countingHandler) Check(event.Event, *Snapshot) Verdict {
	h.checks++
	return Accept
}
func (h *countingHandler) Handle(context.Context, event.Event) (Outcome, error) {
	return Continue, nil
}

func TestDispatch_CheckCalledOncePerEvent(t *testing.T) {
	h := &countingHandler{}
	d := New(nil)
	d.Add(h)
	d.Add(NewUnknownCommandHandler(nil))
	d.Add(NewDefaultHandler(nil))
	d.Add(NewDefaultHandler(nil))

	d.Dispatch(context.Background(), im("/x"))
	assert.Equal(t, 1, h.checks)
}

func TestDefaultHandlers_IgnoreEachOther(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	first := NewDefaultHandler(rec.action("d1"))
	second := NewDefaultHandler(rec.action("d2"))
	d.Add(first)
	d.Add(second)

	snap := d.Evaluate(im("hi"))
	assert.True(t, snap.Accepted(first))
	assert.True(t, snap.Accepted(second))

	// The first default stops dispatch.
	d.Dispatch(context.Background(), im("hi"))
	assert.Equal(t, []string{"d1"}, rec.got())
}

func TestDispatch_EchoSuppressed(t *testing.T) {
	cache := dedup.New(16, 0)
	cache.RecordSent("m1", "hi")

	rec := &recorder{}
	d := New(cache)
	d.Add(NewMessageHandler(nil, rec.action("handler")))
	d.Add(NewDefaultHandler(rec.action("default")))

	assert.Equal(t, Stop, d.Dispatch(context.Background(), im("hi")))
	assert.Empty(t, rec.got())

	d.Dispatch(context.Background(), im("bye"))
	assert.Equal(t, []string{"handler"}, rec.got())
}

func TestAddRemove(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	a := NewMessageHandler(nil, rec.action("a"))
	b := NewMessageHandler(nil, rec.action("b"))
	d.Add(a)
	d.Add(b)
	require.Equal(t, 2, d.Len())

	assert.True(t, d.Remove(a))
	assert.False(t, d.Remove(a))
	assert.Equal(t, 1, d.Len())

	d.Dispatch(context.Background(), im("hi"))
	assert.Equal(t, []string{"b"}, rec.got())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, name, args string
		ok             bool
	}{
		{"/help", "help", "", true},
		{"  .status  now please ", "status", "now please", true},
		{"/feedback\tgreat bot", "feedback", "great bot", true},
		{"/start@my_bot arg", "start", "arg", true},
		{"hello", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		name, args, ok := ParseCommand(tt.in)
		if name != tt.name || args != tt.args || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = %q, %q, %v; want %q, %q, %v",
				tt.in, name, args, ok, tt.name, tt.args, tt.ok)
		}
	}
}

func TestCommandHandler_NoNamesAcceptsAnyCommand(t *testing.T) {
	h := NewCommandHandler(nil, nil)
	assert.Equal(t, Accept, h.Check(im("/anything"), nil))
	assert.Equal(t, Pass, h.Check(im("plain"), nil))
}

type sent struct{ target, text string }

type fakeSender struct {
	msgs []sent
	err  error
}

func (f *fakeSender) SendIM(_ context.Context, target, text string) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{target, text})
	return nil
}

func TestFeedbackCommand(t *testing.T) {
	s := &fakeSender{}
	fo := DefaultFeedbackOptions("owner")
	fo.ErrorReply = "Usage: /feedback <text>"
	d := New(nil)
	d.Add(NewFeedbackCommandHandler(s, fo))

	d.Dispatch(context.Background(), im("/feedback nice bot"))
	assert.Equal(t, []sent{
		{"owner", "Feedback from '100': 'nice bot'."},
		{"100", "Got it!"},
	}, s.msgs)

	s.msgs = nil
	d.Dispatch(context.Background(), im("/feedback   "))
	assert.Equal(t, []sent{{"100", "Usage: /feedback <text>"}}, s.msgs)
}

func TestFeedbackCommand_CountsAsKnownCommand(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	d.Add(NewFeedbackCommandHandler(&fakeSender{}, DefaultFeedbackOptions("owner")))
	d.Add(NewUnknownCommandHandler(rec.action("unknown")))

	d.Dispatch(context.Background(), im("/feedback hi"))
	assert.Empty(t, rec.got())
}

func TestKindHandlers(t *testing.T) {
	rec := &recorder{}
	d := New(nil)
	d.Add(NewTypingHandler(rec.action("typing")))
	d.Add(NewMyInfoHandler(rec.action("myinfo")))
	d.Add(NewSentIMHandler(rec.action("sent")))
	d.Add(NewUserAddedHandler(rec.action("added")))

	for _, k := range []event.Kind{event.KindMyInfo, event.KindTyping, event.KindUserAddedToBuddy, event.KindSentIM, event.KindPresence} {
		d.Dispatch(context.Background(), event.New(k, nil))
	}
	assert.Equal(t, []string{"myinfo", "typing", "added", "sent"}, rec.got())
}
