package visualservo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"

	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/spatialmath"
)

// missLogEvery is how many consecutive pattern misses pass between log lines.
const missLogEvery = 25

// Follow polls the camera for the lead vehicle's dot pattern and keeps the
// latest stand-off driving target in the session state. Returns when the
// context is cancelled.
func Follow(ctx context.Context, r *Robot) error {
	r.resetState()

	if r.cam == nil {
		return fmt.Errorf("no camera available")
	}

	r.logger.Infof("Watching for the lead vehicle every %v", r.poll)
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			seen, found := r.Stats()
			r.logger.Infof("Shutting down; saw the pattern in %d of %d frames", found, seen)
			return nil
		case <-ticker.C:
		}

		if err := followOnce(ctx, r); err != nil {
			r.logger.Warnf("Frame skipped: %v", err)
		}
	}
}

// Estimate runs the pipeline on a single frame and logs the outcome.
func Estimate(ctx context.Context, r *Robot) error {
	if err := followOnce(ctx, r); err != nil {
		return err
	}
	if result := r.LastResult(); result == nil || !result.Found {
		r.logger.Info("Pattern not found")
	}
	return nil
}

// Snapshot grabs a single frame, saves it, and runs the estimator on it,
// writing detection diagnostics when the pattern is visible. Frames land in
// the debug directory, or in ./snapshots when none is configured.
func Snapshot(ctx context.Context, r *Robot) error {
	dir := r.DebugDir
	if dir == "" {
		dir = "snapshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	img, err := grabFrame(ctx, r.cam)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	result, err := r.estimator.Estimate(ctx, img)
	if err != nil {
		return fmt.Errorf("estimate: %w", err)
	}
	r.state.FramesSeen++
	r.state.LastResult = result

	framePath := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", r.estimator.Frames()))
	if err := rimage.SaveImage(img, framePath); err != nil {
		return fmt.Errorf("save frame: %w", err)
	}
	r.logger.Infof("Saved frame to %s", framePath)

	if !result.Found {
		r.logger.Info("Pattern not found in snapshot")
		return nil
	}
	r.state.FramesFound++

	if err := saveDiagnostics(r, dir, img, result); err != nil {
		return err
	}
	logTarget(r, result.Target)
	return nil
}

// followOnce pulls one frame, runs the estimator, and updates session state.
func followOnce(ctx context.Context, r *Robot) error {
	img, err := grabFrame(ctx, r.cam)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}

	result, err := r.estimator.Estimate(ctx, img)
	if err != nil {
		return fmt.Errorf("estimate: %w", err)
	}

	r.state.FramesSeen++
	r.state.LastResult = result

	if !result.Found {
		r.state.MissStreak++
		if r.state.MissStreak%missLogEvery == 0 {
			r.logger.Infof("Pattern not seen for %d frames", r.state.MissStreak)
		}
		return nil
	}

	r.state.FramesFound++
	r.state.MissStreak = 0

	logTarget(r, result.Target)
	r.logger.Debugf("Pattern pose: rot=(%.4f, %.4f, %.4f) trans=(%.4f, %.4f, %.4f)m",
		result.Pose.Rotation.X, result.Pose.Rotation.Y, result.Pose.Rotation.Z,
		result.Pose.Translation.X, result.Pose.Translation.Y, result.Pose.Translation.Z)

	if worldPose, err := worldTarget(ctx, r, result.Target); err != nil {
		r.logger.Debugf("No world frame for target: %v", err)
	} else {
		pt := worldPose.Point()
		r.logger.Infof("Target in world frame: (%.1f, %.1f, %.1f)mm", pt.X, pt.Y, pt.Z)
	}

	if r.DebugDir != "" {
		if err := saveDiagnostics(r, r.DebugDir, img, result); err != nil {
			r.logger.Warnf("Failed to save diagnostics: %v", err)
		}
	}
	return nil
}

func logTarget(r *Robot, target *servopose.TargetPose) {
	r.logger.Infof("Target: forward=%.3fm lateral=%.3fm heading=%.1fdeg",
		target.Position.X, target.Position.Z, target.HeadingDeg)
}

// worldTarget re-expresses the driving target in the machine's world frame
// using the camera's pose from the frame system. The target's ground-plane
// components map back onto the camera's optical axes (lateral on x, forward
// on z), and meters scale up to the frame system's millimeters.
func worldTarget(ctx context.Context, r *Robot, target *servopose.TargetPose) (spatialmath.Pose, error) {
	camPose, err := r.machine.GetPose(ctx, r.cam.Name().Name, "", nil, nil)
	if err != nil {
		return nil, err
	}

	local := spatialmath.NewPoseFromPoint(r3.Vector{
		X: target.Position.Z * 1000,
		Y: 0,
		Z: target.Position.X * 1000,
	})
	return spatialmath.Compose(camPose.Pose(), local), nil
}
