package body

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// Joint is one joint as reported by the sensor, in sensor camera space.
// Orientation is (x, y, z, w); an all-zero orientation means the sensor has
// no rotation for the joint.
type Joint struct {
	Position    mgl64.Vec3    `json:"position"`
	Orientation mgl64.Vec4    `json:"orientation"`
	State       TrackingState `json:"state"`
}

// Hand is the sensor's hand classification.
type Hand struct {
	State      HandState  `json:"state"`
	Confidence Confidence `json:"confidence"`
}

// Face is an optional face pose. Rotation is (x, y, z, w) in sensor space.
type Face struct {
	Rotation mgl64.Vec4 `json:"rotation"`
}

// Detection is one body in one sensor frame. It is owned by the feed and
// valid only until the next frame is delivered.
type Detection struct {
	TrackingID uint64              `json:"id"`
	Tracked    bool                `json:"tracked"`
	Joints     map[JointType]Joint `json:"joints,omitempty"`
	Lean       mgl64.Vec2          `json:"lean"`
	HandLeft   Hand                `json:"hand_left"`
	HandRight  Hand                `json:"hand_right"`
	Face       *Face               `json:"face,omitempty"`
}

// Joint returns the joint of type t, or a NotTracked zero joint when the
// detection has none.
func (d *Detection) Joint(t JointType) Joint {
	if j, ok := d.Joints[t]; ok {
		return j
	}
	return Joint{}
}

// Frame is one sensor frame. Counter increases strictly for the lifetime of
// the sensor session. FloorClipPlane is (nx, ny, nz, height).
type Frame struct {
	Counter        int64       `json:"frame"`
	Timestamp      time.Time   `json:"timestamp"`
	FloorClipPlane mgl64.Vec4  `json:"floor"`
	Detections     []Detection `json:"bodies"`

	// TrackedCount is the number of leading detections that are tracked. It
	// is set by SortAndCount.
	TrackedCount int `json:"-"`

	// Session numbers the sensor connection the frame came from. Counters
	// and tracking ids restart with every session.
	Session int64 `json:"-"`
}

// Tracked returns the leading tracked detections. The frame must have been
// normalized with Normalize.
func (f *Frame) Tracked() []Detection {
	return f.Detections[:f.TrackedCount]
}

// Normalize sorts the detections and records the tracked count.
func (f *Frame) Normalize() {
	f.TrackedCount = SortAndCount(f.Detections)
}
