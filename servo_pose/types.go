package servopose

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// ProfileID selects one of the camera calibration presets a pipeline runs with.
type ProfileID int

const (
	// ProfileRectified uses rectified intrinsics and no distortion model.
	ProfileRectified ProfileID = iota
	// ProfileRectifiedDistorted uses rectified intrinsics with the nominal distortion model.
	ProfileRectifiedDistorted
	// ProfileRaw uses the raw factory intrinsics and no distortion model.
	ProfileRaw
	// ProfileRawDistorted uses the raw factory intrinsics with the nominal distortion model.
	ProfileRawDistorted
	// ProfileAlternate uses the independently calibrated second-unit intrinsics and distortion.
	ProfileAlternate
)

func (p ProfileID) String() string {
	switch p {
	case ProfileRectified:
		return "rectified"
	case ProfileRectifiedDistorted:
		return "rectified_distorted"
	case ProfileRaw:
		return "raw"
	case ProfileRawDistorted:
		return "raw_distorted"
	case ProfileAlternate:
		return "alternate"
	default:
		return "unknown"
	}
}

// Blob is a connected dark region found by the multi-threshold detector.
type Blob struct {
	Center r2.Point // centroid in pixel coordinates
	Area   float64  // mean pixel area across the threshold levels that saw it
}

// GridDetection holds the outcome of locating the dot pattern in one frame.
// When Found is false the pattern was simply not visible; Points is nil.
type GridDetection struct {
	Found  bool
	Points []r2.Point // row-major, top row first, left to right
}

// PoseEstimate is the rigid transform from the pattern frame to the camera frame.
type PoseEstimate struct {
	Rotation    r3.Vector // axis-angle vector; direction is the axis, norm is the angle in radians
	Translation r3.Vector // pattern origin in the camera frame, in meters
}

// TargetPose is the stand-off point the vehicle should drive to, expressed in
// the ground plane of the camera frame.
type TargetPose struct {
	Position   r3.Vector // X forward offset, Y zero, Z lateral offset, in meters
	HeadingDeg float64   // heading correction in degrees, positive counterclockwise
}

// EstimateResult is the per-frame output of the estimation pipeline. A frame
// without the pattern in view yields Found == false and nil pose fields.
type EstimateResult struct {
	Found       bool
	ImagePoints []r2.Point
	Pose        *PoseEstimate
	Target      *TargetPose
}
