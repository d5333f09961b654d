package actors

import (
	"slices"

	"github.com/banshee-data/cave.view/internal/geom"
)

// Trigger is a world-space box that reports actors entering and leaving it.
// An actor is inside while its bounds center is inside the box.
type Trigger struct {
	Bounds geom.Bounds

	// OnEnter and OnExit are called from Update.
	OnEnter func(*Actor)
	OnExit  func(*Actor)

	inside []*Actor
}

// NewTrigger returns a trigger covering bounds.
func NewTrigger(bounds geom.Bounds) *Trigger {
	return &Trigger{Bounds: bounds}
}

// Update re-evaluates the trigger against the live actors. Actors no longer
// in the list are treated as having left.
func (t *Trigger) Update(actors []*Actor) {
	var now []*Actor
	for _, a := range actors {
		if t.Bounds.Contains(a.bounds.Center) {
			now = append(now, a)
		}
	}
	for _, a := range t.inside {
		if !slices.Contains(now, a) && t.OnExit != nil {
			t.OnExit(a)
		}
	}
	for _, a := range now {
		if !slices.Contains(t.inside, a) && t.OnEnter != nil {
			t.OnEnter(a)
		}
	}
	t.inside = now
}

// Inside returns the actors currently inside the trigger.
func (t *Trigger) Inside() []*Actor { return t.inside }

// Closest returns the inside actor nearest to the trigger's center, or nil.
func (t *Trigger) Closest() *Actor {
	return ClosestToPoint(t.inside, t.Bounds.Center)
}
