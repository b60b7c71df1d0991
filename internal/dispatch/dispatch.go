// Package dispatch routes events to the handlers registered with a Dispatcher.
//
// Dispatch runs in two phases. Phase one asks every handler, exactly once,
// whether it wants the event and records the answers in a Snapshot. Fallback
// handlers (unknown command, default) are asked last and decide by reading the
// Snapshot, never by calling their siblings again. Phase two invokes the
// accepted handlers in registration order until one of them returns Stop.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/nextlevelbuilder/goicq/internal/event"
)

// Verdict is a handler's phase-one answer.
type Verdict int

const (
	// Pass declines the event.
	Pass Verdict = iota
	// Accept schedules the handler for phase two.
	Accept
	// Cancel ends dispatch for this event: neither this handler nor any
	// handler registered after it is invoked, and fallback handlers are
	// not asked at all.
	Cancel
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Accept:
		return "accept"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Outcome tells the dispatcher whether to keep walking the handler list.
type Outcome int

const (
	Continue Outcome = iota
	Stop
)

func (o Outcome) String() string {
	if o == Stop {
		return "stop"
	}
	return "continue"
}

// Stage orders phase-one evaluation. Handlers of a later stage can read the
// verdicts of every handler of the earlier stages.
type Stage int

const (
	StagePredicate Stage = iota
	StageCommandFallback
	StageFallback
)

var stages = []Stage{StagePredicate, StageCommandFallback, StageFallback}

// Handler is one entry in the dispatch chain. Handlers are told apart by
// identity, so implementations should be pointers. A value of a
// non-comparable type can be registered but never matches in Remove or
// Snapshot lookups.
type Handler interface {
	Name() string
	Stage() Stage
	// Check must not have side effects. It is called once per event.
	Check(ev event.Event, snap *Snapshot) Verdict
	Handle(ctx context.Context, ev event.Event) (Outcome, error)
}

// Snapshot holds the phase-one verdicts for one event.
type Snapshot struct {
	handlers []Handler
	verdicts []Verdict
	cut      int // index of the first cancelling handler, -1 if none
}

func newSnapshot(handlers []Handler) *Snapshot {
	return &Snapshot{
		handlers: handlers,
		verdicts: make([]Verdict, len(handlers)),
		cut:      -1,
	}
}

func (s *Snapshot) index(h Handler) int {
	for i, x := range s.handlers {
		if sameHandler(x, h) {
			return i
		}
	}
	return -1
}

// Verdict returns the recorded verdict of h, Pass if h was not evaluated.
func (s *Snapshot) Verdict(h Handler) Verdict {
	if i := s.index(h); i >= 0 {
		return s.verdicts[i]
	}
	return Pass
}

// Accepted reports whether h accepted the event.
func (s *Snapshot) Accepted(h Handler) bool { return s.Verdict(h) == Accept }

// AnyAccepted reports whether any handler selected by which accepted the
// event. A nil which selects every handler.
func (s *Snapshot) AnyAccepted(which func(Handler) bool) bool {
	for i, h := range s.handlers {
		if s.verdicts[i] != Accept {
			continue
		}
		if which == nil || which(h) {
			return true
		}
	}
	return false
}

// Cancelled reports whether a handler cancelled the event.
func (s *Snapshot) Cancelled() bool { return s.cut >= 0 }

func (s *Snapshot) excluded(i int) bool { return s.cut >= 0 && i >= s.cut }

// sameHandler compares a and b without panicking on non-comparable dynamic
// types.
func sameHandler(a, b Handler) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	t := reflect.TypeOf(a)
	if t != reflect.TypeOf(b) || !t.Comparable() {
		return false
	}
	defer func() { recover() }()
	return a == b
}

// Suppressor drops echoes of messages the bot sent itself.
type Suppressor interface {
	ShouldSuppress(msgID, text string) bool
}

// Dispatcher owns the ordered handler list.
type Dispatcher struct {
	mu         sync.RWMutex
	handlers   []Handler
	suppressor Suppressor
}

// New creates a dispatcher. suppressor may be nil.
func New(suppressor Suppressor) *Dispatcher {
	return &Dispatcher{suppressor: suppressor}
}

// Add appends h to the chain.
func (d *Dispatcher) Add(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Remove deletes the first registration of h.
func (d *Dispatcher) Remove(h Handler) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.handlers {
		if sameHandler(x, h) {
			d.handlers = slices.Delete(d.handlers, i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Handlers returns a copy of the chain in registration order.
func (d *Dispatcher) Handlers() []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.handlers)
}

// Dispatch evaluates and runs the chain for ev. It returns Stop when the event
// was suppressed, cancelled or stopped by a handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) Outcome {
	if d.suppressed(ev) {
		slog.Debug("dispatch: echo suppressed", "kind", ev.Kind())
		return Stop
	}

	handlers := d.Handlers()
	snap := d.evaluate(ev, handlers)

	for i, h := range handlers {
		if snap.excluded(i) {
			break
		}
		if snap.verdicts[i] != Accept {
			continue
		}
		if d.invoke(ctx, h, ev) == Stop {
			return Stop
		}
	}
	if snap.Cancelled() {
		return Stop
	}
	return Continue
}

// Evaluate runs phase one only. Useful to inspect which handlers an event
// would reach.
func (d *Dispatcher) Evaluate(ev event.Event) *Snapshot {
	return d.evaluate(ev, d.Handlers())
}

func (d *Dispatcher) suppressed(ev event.Event) bool {
	if d.suppressor == nil {
		return false
	}
	text, ok := ev.Message()
	if !ok {
		return false
	}
	id, ok := ev.MessageID()
	if !ok {
		return false
	}
	return d.suppressor.ShouldSuppress(id, text)
}

func (d *Dispatcher) evaluate(ev event.Event, handlers []Handler) *Snapshot {
	snap := newSnapshot(handlers)
	for _, stage := range stages {
		if stage != StagePredicate && snap.Cancelled() {
			break
		}
		for i, h := range handlers {
			if h.Stage() != stage || snap.excluded(i) {
				continue
			}
			v := check(h, ev, snap)
			snap.verdicts[i] = v
			if v == Cancel {
				snap.cut = i
			}
		}
	}
	return snap
}

func check(h Handler, ev event.Event, snap *Snapshot) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: handler check panicked",
				"handler", h.Name(), "kind", ev.Kind(), "panic", r, "stack", string(debug.Stack()))
			v = Pass
		}
	}()
	return h.Check(ev, snap)
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, ev event.Event) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: handler panicked",
				"handler", h.Name(), "kind", ev.Kind(), "panic", r, "stack", string(debug.Stack()))
			out = Continue
		}
	}()

	out, err := h.Handle(ctx, ev)
	if err != nil {
		slog.Warn("dispatch: handler failed", "handler", h.Name(), "kind", ev.Kind(), "error", err)
	}
	return out
}
