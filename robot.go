package visualservo

import (
	"context"
	"fmt"
	"time"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot"

	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"
)

// defaultCameraName is the resource name of the follower's forward camera.
const defaultCameraName = "camera"

// defaultPollInterval is the time between frames in the follow loop.
const defaultPollInterval = 200 * time.Millisecond

// Robot holds the machine connection, camera, and estimation pipeline for the
// follow loop.
type Robot struct {
	logger  logging.Logger
	machine robot.Robot

	// Camera
	cam camera.Camera

	// Estimation
	estimator *servopose.Estimator

	// State
	state *FollowState

	// Polling cadence of the follow loop.
	poll time.Duration

	// DebugDir, when set, is a directory for persisting per-detection
	// diagnostics (annotated frames and pattern point clouds). If empty,
	// no diagnostics are written.
	DebugDir string
}

// FollowState tracks the progress of the current follow session.
type FollowState struct {
	// Frames pulled from the camera this session.
	FramesSeen int

	// Frames where the pattern was found.
	FramesFound int

	// Consecutive frames without a detection.
	MissStreak int

	// Most recent estimation result.
	LastResult *servopose.EstimateResult
}

// Options configures NewRobot. The zero value uses the default camera name,
// the default pipeline configuration, and the default polling cadence, but a
// calibration path must always be given.
type Options struct {
	// CameraName is the machine resource name of the follower's camera.
	CameraName string

	// CalibrationPath is the calibration table to load.
	CalibrationPath string

	// Config overrides the default pipeline configuration when non-nil.
	Config *servopose.Config

	// PollInterval is the time between frames in the follow loop.
	PollInterval time.Duration

	// DebugDir, when set, receives per-detection diagnostics.
	DebugDir string
}

// NewRobot creates a Robot by looking up the camera on the machine and
// building the estimation pipeline. Configuration problems surface here, not
// per frame.
func NewRobot(ctx context.Context, machine robot.Robot, logger logging.Logger, opts Options) (*Robot, error) {
	r := &Robot{
		logger:   logger,
		machine:  machine,
		state:    &FollowState{},
		poll:     opts.PollInterval,
		DebugDir: opts.DebugDir,
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}

	camName := opts.CameraName
	if camName == "" {
		camName = defaultCameraName
	}
	cam, err := camera.FromProvider(machine, camName)
	if err != nil {
		return nil, fmt.Errorf("camera (%s): %w", camName, err)
	}
	r.cam = cam

	set, err := servopose.LoadCalibrationSet(opts.CalibrationPath)
	if err != nil {
		return nil, err
	}
	estimator, err := servopose.NewEstimator(opts.Config, set)
	if err != nil {
		return nil, err
	}
	r.estimator = estimator

	logger.Infof("Calibration %q loaded, running profile %v", set.Name(), estimator.Profile().ID)
	return r, nil
}

// LastResult returns the most recent estimation result from the follow loop.
func (r *Robot) LastResult() *servopose.EstimateResult {
	if r.state == nil {
		return nil
	}
	return r.state.LastResult
}

// Stats returns how many frames the current session has seen and how many of
// them contained the pattern.
func (r *Robot) Stats() (seen, found int) {
	if r.state == nil {
		return 0, 0
	}
	return r.state.FramesSeen, r.state.FramesFound
}

// resetState clears the follow session counters for the next run.
func (r *Robot) resetState() {
	r.state = &FollowState{}
}
