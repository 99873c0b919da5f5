package servopose

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/utils"
)

// TargetFromPose converts a camera-frame pattern pose into the point the
// vehicle should drive to: standoff meters behind the pattern along the lead
// vehicle's own heading, expressed in the follower's ground plane. Position.X
// is the forward distance, Position.Z the lateral offset, and HeadingDeg the
// turn needed to face the same way as the lead vehicle.
//
// The lead vehicle's heading is read straight from the y component of the
// axis-angle rotation. That equals its yaw only while camera roll and pitch
// stay small, which holds for a camera mounted level on the follower.
func TargetFromPose(pose *PoseEstimate, standoff float64) TargetPose {
	theta := pose.Rotation.Y
	xBumper := pose.Translation.X
	yBumper := pose.Translation.Z

	yTarget := yBumper - standoff*math.Cos(theta)
	xTarget := xBumper + standoff*math.Sin(theta)

	return TargetPose{
		Position:   r3.Vector{X: yTarget, Y: 0, Z: xTarget},
		HeadingDeg: -utils.RadToDeg(theta),
	}
}
