package actors

import (
	"math"

	"github.com/banshee-data/cave.view/internal/body"
	"github.com/banshee-data/cave.view/internal/geom"
	"github.com/go-gl/mathgl/mgl64"
)

// older reports whether a was created before b. Ties go to the lower id.
func older(a, b *Actor) bool {
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.trackingID < b.trackingID
}

// LongestTracked returns the actor that has existed the longest, or nil.
func LongestTracked(actors []*Actor) *Actor {
	var best *Actor
	for _, a := range actors {
		if best == nil || older(a, best) {
			best = a
		}
	}
	return best
}

// LongestTrackedInside returns the oldest actor whose bounds center
// satisfies contains, or nil.
func LongestTrackedInside(actors []*Actor, contains func(mgl64.Vec3) bool) *Actor {
	var best *Actor
	for _, a := range actors {
		if !contains(a.bounds.Center) {
			continue
		}
		if best == nil || older(a, best) {
			best = a
		}
	}
	return best
}

// ClosestToPoint returns the actor whose bounds center is nearest to p, or
// nil.
func ClosestToPoint(actors []*Actor, p mgl64.Vec3) *Actor {
	var best *Actor
	bestDist := math.Inf(1)
	for _, a := range actors {
		if d := geom.SqrDistance(a.bounds.Center, p); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}

// ClosestJointToPoint returns the actor whose joint t is nearest to p.
// Actors whose joint is not tracked are skipped.
func ClosestJointToPoint(actors []*Actor, t body.JointType, p mgl64.Vec3) *Actor {
	var best *Actor
	bestDist := math.Inf(1)
	for _, a := range actors {
		j := a.Body.Joint(t)
		if j.State == body.NotTracked {
			continue
		}
		if d := geom.SqrDistance(j.Position, p); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}
