package servopose

// Config holds all configuration for the pattern pose estimation pipeline.
type Config struct {
	Pattern  PatternConfig
	Detector DetectorConfig
	Solver   SolverConfig
	Target   TargetConfig
	Profile  ProfileID // calibration preset the pipeline runs with
}

// PatternConfig describes the physical dot pattern mounted on the lead vehicle.
type PatternConfig struct {
	Rows    int     // Number of dot rows
	Cols    int     // Number of dot columns
	Spacing float64 // Center-to-center dot spacing in meters
}

// DetectorConfig holds parameters for dark-blob extraction and grid ordering.
type DetectorConfig struct {
	ThresholdMin        int     // First binarization threshold in the sweep
	ThresholdMax        int     // Last binarization threshold in the sweep
	ThresholdStep       int     // Increment between thresholds
	MinArea             int     // Minimum component area in pixels
	MaxArea             int     // Maximum component area in pixels; 0 = no limit
	MinDistBetweenBlobs float64 // Max center distance to merge components across thresholds
	MinRepeatability    int     // Min threshold levels a blob must appear at
	GridResidualFrac    float64 // Max row-line residual as a fraction of dot pitch
}

// SolverConfig holds parameters for pose recovery and refinement.
type SolverConfig struct {
	MaxEvaluations       int     // Budget of cost evaluations for the simplex refiner
	ConvergenceTol       float64 // Absolute and relative cost improvement tolerance
	ConvergenceIters     int     // Iterations the tolerance must hold before stopping
	DegeneracyRatio      float64 // Min ratio of smallest to largest singular value in the DLT
	MaxReprojectionError float64 // Max RMS reprojection error in pixels to accept a pose
}

// TargetConfig holds parameters for converting a pattern pose into a driving target.
type TargetConfig struct {
	Standoff float64 // Distance in meters to hold behind the pattern
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Pattern: PatternConfig{
			Rows:    3,
			Cols:    8,
			Spacing: 0.0125,
		},
		Detector: DetectorConfig{
			ThresholdMin:        50,
			ThresholdMax:        220,
			ThresholdStep:       10,
			MinArea:             5,
			MaxArea:             0,
			MinDistBetweenBlobs: 1.0,
			MinRepeatability:    2,
			GridResidualFrac:    0.25,
		},
		Solver: SolverConfig{
			MaxEvaluations:       25000,
			ConvergenceTol:       1e-12,
			ConvergenceIters:     100,
			DegeneracyRatio:      1e-9,
			MaxReprojectionError: 8.0,
		},
		Target: TargetConfig{
			Standoff: 0.25,
		},
		Profile: ProfileRectified,
	}
}
