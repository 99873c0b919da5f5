package servopose

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// Estimator runs the full pattern pose pipeline on camera frames: blob
// detection, grid ordering, pose recovery, and stand-off target computation.
type Estimator struct {
	cfg     Config
	pattern *CirclePattern
	profile *CameraProfile
	frames  int
}

// NewEstimator creates an Estimator for one camera profile of a calibration
// set. Configuration problems surface here, not per frame.
func NewEstimator(cfg *Config, set *CalibrationSet) (*Estimator, error) {
	if cfg == nil {
		c := DefaultConfig()
		cfg = &c
	}
	if set == nil {
		return nil, fmt.Errorf("%w: no calibration set", ErrBadCalibration)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	pattern, err := NewCirclePattern(cfg.Pattern.Rows, cfg.Pattern.Cols, cfg.Pattern.Spacing)
	if err != nil {
		return nil, err
	}
	profile, err := set.Profile(cfg.Profile)
	if err != nil {
		return nil, err
	}

	return &Estimator{cfg: *cfg, pattern: pattern, profile: profile}, nil
}

// Estimate runs detection and pose recovery on one frame. A frame without the
// pattern in view returns Found == false with a nil error; errors are reserved
// for frames the pipeline cannot work with at all.
func (e *Estimator) Estimate(ctx context.Context, img image.Image) (*EstimateResult, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	e.frames++

	bounds := img.Bounds()
	wantW, wantH := e.profile.Intrinsics.Width, e.profile.Intrinsics.Height
	if bounds.Dx() != wantW || bounds.Dy() != wantH {
		return nil, fmt.Errorf("%w: frame %dx%d, calibrated for %dx%d",
			ErrResolutionMismatch, bounds.Dx(), bounds.Dy(), wantW, wantH)
	}

	// Step 1: dark blob extraction and grid ordering.
	det := DetectGrid(img, e.pattern, e.cfg.Detector)
	if !det.Found {
		return &EstimateResult{}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 2: planar pose recovery.
	pose, err := SolvePose(e.pattern, det.Points, e.profile, e.cfg.Solver)
	if err != nil {
		// A frame the solver cannot use is a miss, not a pipeline failure.
		if errors.Is(err, ErrDegenerateSolve) || errors.Is(err, ErrSolveNotConverged) {
			return &EstimateResult{}, nil
		}
		return nil, fmt.Errorf("pose solve: %w", err)
	}

	// Step 3: stand-off target.
	target := TargetFromPose(pose, e.cfg.Target.Standoff)

	return &EstimateResult{
		Found:       true,
		ImagePoints: det.Points,
		Pose:        pose,
		Target:      &target,
	}, nil
}

// Frames returns how many frames the estimator has been fed.
func (e *Estimator) Frames() int { return e.frames }

// Pattern returns the dot pattern the estimator searches for.
func (e *Estimator) Pattern() *CirclePattern { return e.pattern }

// Profile returns the camera profile the estimator runs with.
func (e *Estimator) Profile() *CameraProfile { return e.profile }

// Config returns the configuration the estimator was built with.
func (e *Estimator) Config() Config { return e.cfg }

func validateConfig(cfg *Config) error {
	d := cfg.Detector
	switch {
	case d.ThresholdMin < 0 || d.ThresholdMax > 255 || d.ThresholdMin > d.ThresholdMax:
		return fmt.Errorf("%w: threshold sweep [%d, %d] out of range", ErrBadConfig, d.ThresholdMin, d.ThresholdMax)
	case d.ThresholdStep <= 0:
		return fmt.Errorf("%w: threshold step must be positive", ErrBadConfig)
	case d.MinArea < 1:
		return fmt.Errorf("%w: min blob area must be at least 1", ErrBadConfig)
	case d.MinRepeatability < 1:
		return fmt.Errorf("%w: min repeatability must be at least 1", ErrBadConfig)
	case d.MinDistBetweenBlobs <= 0:
		return fmt.Errorf("%w: min distance between blobs must be positive", ErrBadConfig)
	case d.GridResidualFrac <= 0:
		return fmt.Errorf("%w: grid residual fraction must be positive", ErrBadConfig)
	}

	s := cfg.Solver
	switch {
	case s.MaxEvaluations < 1:
		return fmt.Errorf("%w: solver needs an evaluation budget", ErrBadConfig)
	case s.MaxReprojectionError <= 0:
		return fmt.Errorf("%w: max reprojection error must be positive", ErrBadConfig)
	}

	if cfg.Target.Standoff < 0 {
		return fmt.Errorf("%w: stand-off distance cannot be negative", ErrBadConfig)
	}
	return nil
}
