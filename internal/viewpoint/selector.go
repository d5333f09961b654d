package viewpoint

import (
	"fmt"

	"github.com/banshee-data/cave.view/internal/actors"
	"github.com/banshee-data/cave.view/internal/environment"
)

// Selector decides which actor drives the viewpoint.
type Selector interface {
	// Accept reports whether a may remain the selected actor.
	Accept(a *actors.Actor) bool
	// Select picks a new actor from all, or returns nil.
	Select(all []*actors.Actor) *actors.Actor
}

type longestInside struct{ env *environment.Environment }

func (s longestInside) Accept(a *actors.Actor) bool { return s.env.Contains(a.Bounds().Center) }

func (s longestInside) Select(all []*actors.Actor) *actors.Actor {
	return actors.LongestTrackedInside(all, s.env.Contains)
}

type longest struct{}

func (longest) Accept(*actors.Actor) bool                { return true }
func (longest) Select(all []*actors.Actor) *actors.Actor { return actors.LongestTracked(all) }

type closestCenter struct{ env *environment.Environment }

func (s closestCenter) Accept(a *actors.Actor) bool { return s.env.Contains(a.Bounds().Center) }

func (s closestCenter) Select(all []*actors.Actor) *actors.Actor {
	var inside []*actors.Actor
	for _, a := range all {
		if s.Accept(a) {
			inside = append(inside, a)
		}
	}
	return actors.ClosestToPoint(inside, s.env.Center())
}

// LongestInside selects the longest tracked actor standing in env.
func LongestInside(env *environment.Environment) Selector { return longestInside{env} }

// Longest selects the longest tracked actor anywhere.
func Longest() Selector { return longest{} }

// ClosestToCenter selects the actor in env nearest to its center.
func ClosestToCenter(env *environment.Environment) Selector { return closestCenter{env} }

// SelectorForPolicy returns the selector named by a configuration policy.
func SelectorForPolicy(policy string, env *environment.Environment) (Selector, error) {
	switch policy {
	case "", "longest_inside":
		return LongestInside(env), nil
	case "longest":
		return Longest(), nil
	case "closest_center":
		return ClosestToCenter(env), nil
	}
	return nil, fmt.Errorf("unknown selection policy %q", policy)
}
