package body

import "github.com/go-gl/mathgl/mgl64"

// StandingDetection returns a tracked detection of a person in the T-pose
// standing at origin. origin is in real space with the floor at Y = 0; the
// joints are written in sensor camera space for a sensor mounted at floor
// level (floor clip plane height 0). Joint orientations are left zero.
func StandingDetection(id uint64, origin mgl64.Vec3) Detection {
	d := Detection{
		TrackingID: id,
		Tracked:    true,
		Joints:     make(map[JointType]Joint, JointCount),
		HandLeft:   Hand{State: HandOpen, Confidence: ConfidenceHigh},
		HandRight:  Hand{State: HandOpen, Confidence: ConfidenceHigh},
	}
	for t := JointType(0); t < JointCount; t++ {
		p := origin.Add(TPose[t])
		d.Joints[t] = Joint{
			Position: mgl64.Vec3{-p.X(), p.Y(), p.Z()},
			State:    Tracked,
		}
	}
	return d
}
