package servopose

import "errors"

var (
	// ErrBadPatternSize is returned when a pattern has fewer than two rows or columns.
	ErrBadPatternSize = errors.New("pattern needs at least two rows and two columns")

	// ErrBadSpacing is returned when a pattern spacing is zero or negative.
	ErrBadSpacing = errors.New("pattern spacing must be positive")

	// ErrUnknownProfile is returned when a calibration profile id has no preset.
	ErrUnknownProfile = errors.New("unknown calibration profile")

	// ErrBadConfig is returned when pipeline configuration values are out of range.
	ErrBadConfig = errors.New("invalid pipeline configuration")

	// ErrBadCalibration is returned when a calibration definition is incomplete or invalid.
	ErrBadCalibration = errors.New("invalid camera calibration")

	// ErrNilImage is returned when a nil frame is passed to the pipeline.
	ErrNilImage = errors.New("image is nil")

	// ErrResolutionMismatch is returned when a frame does not match the calibrated resolution.
	ErrResolutionMismatch = errors.New("frame resolution does not match calibration")

	// ErrPointCountMismatch is returned when image points do not pair up with the pattern dots.
	ErrPointCountMismatch = errors.New("image point count does not match pattern size")

	// ErrDegenerateSolve is returned when the point configuration cannot constrain a pose.
	ErrDegenerateSolve = errors.New("degenerate point configuration")

	// ErrSolveNotConverged is returned when pose refinement fails to reach a usable solution.
	ErrSolveNotConverged = errors.New("pose refinement did not converge")
)
