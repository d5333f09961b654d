// Package body models the per-frame skeletal detections delivered by the
// depth sensor and converts them into the room's real-space frame.
package body

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// JointType identifies one of the sensor's skeleton joints.
type JointType int

const (
	SpineBase JointType = iota
	SpineMid
	Neck
	Head
	ShoulderLeft
	ElbowLeft
	WristLeft
	HandLeft
	ShoulderRight
	ElbowRight
	WristRight
	HandRight
	HipLeft
	KneeLeft
	AnkleLeft
	FootLeft
	HipRight
	KneeRight
	AnkleRight
	FootRight
	SpineShoulder
	HandTipLeft
	ThumbLeft
	HandTipRight
	ThumbRight
)

// JointCount is the number of joint types.
const JointCount = 25

var jointNames = [JointCount]string{
	"SpineBase", "SpineMid", "Neck", "Head",
	"ShoulderLeft", "ElbowLeft", "WristLeft", "HandLeft",
	"ShoulderRight", "ElbowRight", "WristRight", "HandRight",
	"HipLeft", "KneeLeft", "AnkleLeft", "FootLeft",
	"HipRight", "KneeRight", "AnkleRight", "FootRight",
	"SpineShoulder", "HandTipLeft", "ThumbLeft", "HandTipRight", "ThumbRight",
}

// parentJointTypes maps each joint to its parent in the skeleton hierarchy.
// SpineBase is its own parent.
var parentJointTypes = [JointCount]JointType{
	SpineBase, SpineBase, SpineShoulder, Neck,
	SpineShoulder, ShoulderLeft, ElbowLeft, WristLeft,
	SpineShoulder, ShoulderRight, ElbowRight, WristRight,
	SpineBase, HipLeft, KneeLeft, AnkleLeft,
	SpineBase, HipRight, KneeRight, AnkleRight,
	SpineMid,
	HandLeft, HandLeft,
	HandRight, HandRight,
}

// TPose holds a reference standing pose in meters, feet on the floor.
var TPose = [JointCount]mgl64.Vec3{
	{0, 1.12, 0}, {0, 1.3, 0},
	{0, 1.6, 0}, {0, 1.7, 0},
	{0.165, 1.45, 0}, {0.25, 1.23, 0},
	{0.35, 1, 0}, {0.38, 0.95, 0},
	{-0.165, 1.45, 0}, {-0.25, 1.23, 0},
	{-0.35, 1, 0}, {-0.38, 0.95, 0},
	{0.07, 0.95, 0}, {0.1, 0.6, 0},
	{0.14, 0, 0}, {0.24, 0, -0.15},
	{-0.07, 0.95, 0}, {-0.1, 0.6, 0},
	{-0.14, 0, 0}, {-0.24, 0, -0.15},
	{0, 1.5, 0},
	{0.44, 0.85, 0}, {0.374, 0.916, -0.06},
	{-0.44, 0.85, 0}, {-0.374, 0.916, -0.06},
}

// Predefined joint groups.
var (
	HeadJoints      = []JointType{Head, Neck}
	TorsoJoints     = []JointType{SpineShoulder, SpineMid, SpineBase}
	LegLeftJoints   = []JointType{HipLeft, KneeLeft, AnkleLeft, FootLeft}
	LegRightJoints  = []JointType{HipRight, KneeRight, AnkleRight, FootRight}
	ArmLeftJoints   = []JointType{ShoulderLeft, ElbowLeft, WristLeft}
	ArmRightJoints  = []JointType{ShoulderRight, ElbowRight, WristRight}
	HandLeftJoints  = []JointType{HandLeft, ThumbLeft, HandTipLeft}
	HandRightJoints = []JointType{HandRight, ThumbRight, HandTipRight}
)

// Valid reports whether j is a known joint type.
func (j JointType) Valid() bool { return j >= 0 && j < JointCount }

func (j JointType) String() string {
	if !j.Valid() {
		return fmt.Sprintf("JointType(%d)", int(j))
	}
	return jointNames[j]
}

// Parent returns the parent joint type.
func (j JointType) Parent() JointType { return parentJointTypes[j] }

// MarshalText encodes the joint by name.
func (j JointType) MarshalText() ([]byte, error) {
	if !j.Valid() {
		return nil, fmt.Errorf("invalid joint type %d", int(j))
	}
	return []byte(jointNames[j]), nil
}

// UnmarshalText decodes a joint name.
func (j *JointType) UnmarshalText(b []byte) error {
	jt, err := ParseJointType(string(b))
	if err != nil {
		return err
	}
	*j = jt
	return nil
}

// ParseJointType returns the joint type with the given name.
func ParseJointType(name string) (JointType, error) {
	for i, n := range jointNames {
		if n == name {
			return JointType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown joint type %q", name)
}

// InJointTypeHierarchy reports whether parent is child or one of its
// ancestors.
func InJointTypeHierarchy(parent, child JointType) bool {
	for child != parent {
		next := child.Parent()
		if next == child {
			return false
		}
		child = next
	}
	return true
}

// TrackingState is the sensor's confidence in a joint.
type TrackingState int

const (
	NotTracked TrackingState = iota
	Inferred
	Tracked
)

var trackingStateNames = [...]string{"NotTracked", "Inferred", "Tracked"}

func (s TrackingState) String() string {
	if s < 0 || int(s) >= len(trackingStateNames) {
		return fmt.Sprintf("TrackingState(%d)", int(s))
	}
	return trackingStateNames[s]
}

// MarshalText encodes the state by name.
func (s TrackingState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *TrackingState) UnmarshalText(b []byte) error {
	for i, n := range trackingStateNames {
		if n == string(b) {
			*s = TrackingState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown tracking state %q", b)
}

// HandState is the sensor's classification of an open or closed hand.
type HandState int

const (
	HandUnknown HandState = iota
	HandNotTracked
	HandOpen
	HandClosed
	HandLasso
)

var handStateNames = [...]string{"Unknown", "NotTracked", "Open", "Closed", "Lasso"}

func (s HandState) String() string {
	if s < 0 || int(s) >= len(handStateNames) {
		return fmt.Sprintf("HandState(%d)", int(s))
	}
	return handStateNames[s]
}

// MarshalText encodes the hand state by name.
func (s HandState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a hand state name.
func (s *HandState) UnmarshalText(b []byte) error {
	for i, n := range handStateNames {
		if n == string(b) {
			*s = HandState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown hand state %q", b)
}

// Confidence is the sensor's confidence in a hand state.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceHigh
)

// MarshalText encodes the confidence as "Low" or "High".
func (c Confidence) MarshalText() ([]byte, error) {
	if c == ConfidenceHigh {
		return []byte("High"), nil
	}
	return []byte("Low"), nil
}

// UnmarshalText decodes "Low" or "High".
func (c *Confidence) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Low":
		*c = ConfidenceLow
	case "High":
		*c = ConfidenceHigh
	default:
		return fmt.Errorf("unknown confidence %q", b)
	}
	return nil
}
