// Package filter implements the predicate algebra used to select handlers.
//
// Predicates are pure: Match never mutates the event and never blocks.
// Combinators keep references to their operands and evaluate them lazily, left
// to right, stopping as soon as the result is known.
package filter

import "github.com/nextlevelbuilder/goicq/internal/event"

// Predicate decides whether an event is relevant to a handler.
type Predicate interface {
	Match(ev event.Event) bool
}

// Func adapts an ordinary function to a Predicate.
type Func func(ev event.Event) bool

func (f Func) Match(ev event.Event) bool { return f(ev) }

var (
	// Always matches every event.
	Always Predicate = Func(func(event.Event) bool { return true })
	// Never matches no event.
	Never Predicate = Func(func(event.Event) bool { return false })
)

type and struct{ left, right Predicate }

func (p and) Match(ev event.Event) bool { return p.left.Match(ev) && p.right.Match(ev) }

type or struct{ left, right Predicate }

func (p or) Match(ev event.Event) bool { return p.left.Match(ev) || p.right.Match(ev) }

type not struct{ inner Predicate }

func (p not) Match(ev event.Event) bool { return !p.inner.Match(ev) }

// And matches when both operands match. b is not evaluated when a fails.
func And(a, b Predicate) Predicate { return and{left: a, right: b} }

// Or matches when either operand matches. b is not evaluated when a succeeds.
func Or(a, b Predicate) Predicate { return or{left: a, right: b} }

// Not inverts p.
func Not(p Predicate) Predicate { return not{inner: p} }

type anyOf []Predicate

func (ps anyOf) Match(ev event.Event) bool {
	for _, p := range ps {
		if p.Match(ev) {
			return true
		}
	}
	return false
}

type allOf []Predicate

func (ps allOf) Match(ev event.Event) bool {
	for _, p := range ps {
		if !p.Match(ev) {
			return false
		}
	}
	return true
}

// Any matches when at least one predicate matches. Any() never matches.
func Any(ps ...Predicate) Predicate {
	return anyOf(append([]Predicate(nil), ps...))
}

// All matches when every predicate matches. All() always matches.
func All(ps ...Predicate) Predicate {
	return allOf(append([]Predicate(nil), ps...))
}

// OfKind matches events of any of the given kinds.
func OfKind(kinds ...event.Kind) Predicate {
	set := make(map[event.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return Func(func(ev event.Event) bool { return set[ev.Kind()] })
}
