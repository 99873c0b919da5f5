package visualservo

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"
)

// PoseSensorModel is the resource model of the lead-vehicle pose sensor.
var PoseSensorModel = resource.NewModel("duckietown", "visual-servo", "pose-sensor")

func init() {
	resource.RegisterComponent(sensor.API, PoseSensorModel,
		resource.Registration[sensor.Sensor, *PoseSensorConfig]{
			Constructor: newPoseSensor,
		},
	)
}

// PoseSensorConfig configures one pose sensor: the camera to read, the dot
// pattern mounted on the lead vehicle, and the calibration table to interpret
// frames with. Pattern fields left at zero keep the pipeline defaults.
type PoseSensorConfig struct {
	Camera          string  `json:"camera"`
	CalibrationPath string  `json:"calibration_path"`
	Profile         int     `json:"profile"`
	Rows            int     `json:"rows,omitempty"`
	Cols            int     `json:"cols,omitempty"`
	SpacingM        float64 `json:"spacing_m,omitempty"`
	StandoffM       float64 `json:"standoff_m,omitempty"`
}

// Validate ensures all parts of the config are valid and important fields
// exist. Returns implicit required and optional dependencies based on the
// config.
func (cfg *PoseSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Camera == "" {
		return nil, nil, errors.New("camera is required")
	}
	if cfg.CalibrationPath == "" {
		return nil, nil, errors.New("calibration_path is required")
	}
	return []string{cfg.Camera}, nil, nil
}

type poseSensor struct {
	resource.AlwaysRebuild
	resource.TriviallyCloseable

	name      resource.Name
	logger    logging.Logger
	cam       camera.Camera
	estimator *servopose.Estimator
}

func newPoseSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*PoseSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	cam, err := camera.FromDependencies(deps, conf.Camera)
	if err != nil {
		return nil, err
	}

	set, err := servopose.LoadCalibrationSet(conf.CalibrationPath)
	if err != nil {
		return nil, err
	}

	cfg := servopose.DefaultConfig()
	cfg.Profile = servopose.ProfileID(conf.Profile)
	if conf.Rows > 0 {
		cfg.Pattern.Rows = conf.Rows
	}
	if conf.Cols > 0 {
		cfg.Pattern.Cols = conf.Cols
	}
	if conf.SpacingM > 0 {
		cfg.Pattern.Spacing = conf.SpacingM
	}
	if conf.StandoffM > 0 {
		cfg.Target.Standoff = conf.StandoffM
	}

	estimator, err := servopose.NewEstimator(&cfg, set)
	if err != nil {
		return nil, err
	}

	return &poseSensor{
		name:      rawConf.ResourceName(),
		logger:    logger,
		cam:       cam,
		estimator: estimator,
	}, nil
}

func (s *poseSensor) Name() resource.Name {
	return s.name
}

// Readings reports the latest stand-off driving target. A frame without the
// pattern in view yields found=false and no target fields.
func (s *poseSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	result, err := s.estimate(ctx)
	if err != nil {
		return nil, err
	}

	readings := map[string]interface{}{
		"found": result.Found,
		"frame": s.estimator.Frames(),
	}
	if result.Found {
		readings["forward_m"] = result.Target.Position.X
		readings["lateral_m"] = result.Target.Position.Z
		readings["heading_deg"] = result.Target.HeadingDeg
	}
	return readings, nil
}

// poseSensorCommand is the DoCommand request schema.
type poseSensorCommand struct {
	Command   string  `mapstructure:"command"`
	StandoffM float64 `mapstructure:"standoff_m"`
}

func (s *poseSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	var req poseSensorCommand
	if err := mapstructure.Decode(cmd, &req); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch req.Command {
	case "estimate":
		result, err := s.estimate(ctx)
		if err != nil {
			return nil, err
		}
		resp := map[string]interface{}{
			"found": result.Found,
			"frame": s.estimator.Frames(),
		}
		if !result.Found {
			return resp, nil
		}
		target := *result.Target
		if req.StandoffM > 0 {
			target = servopose.TargetFromPose(result.Pose, req.StandoffM)
		}
		resp["dots"] = len(result.ImagePoints)
		resp["target"] = map[string]interface{}{
			"forward_m":   target.Position.X,
			"lateral_m":   target.Position.Z,
			"heading_deg": target.HeadingDeg,
		}
		return resp, nil

	case "pose":
		result, err := s.estimate(ctx)
		if err != nil {
			return nil, err
		}
		if !result.Found {
			return map[string]interface{}{"found": false}, nil
		}
		return map[string]interface{}{
			"found":       true,
			"rotation":    vectorToMap(result.Pose.Rotation),
			"translation": vectorToMap(result.Pose.Translation),
		}, nil

	default:
		return nil, fmt.Errorf("invalid command: %v", cmd["command"])
	}
}

// estimate pulls one frame from the camera and runs the pipeline on it.
func (s *poseSensor) estimate(ctx context.Context) (*servopose.EstimateResult, error) {
	img, err := grabFrame(ctx, s.cam)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return s.estimator.Estimate(ctx, img)
}

func vectorToMap(v r3.Vector) map[string]interface{} {
	return map[string]interface{}{"x": v.X, "y": v.Y, "z": v.Z}
}

var _ sensor.Sensor = (*poseSensor)(nil)
