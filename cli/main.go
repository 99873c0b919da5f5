package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/signal"
	"syscall"

	"github.com/erh/vmodutils"

	visualservo "github.com/jerome-labonte-udem/duckietown-visual-servo"
	"github.com/jerome-labonte-udem/duckietown-visual-servo/internal/creds"
	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

var steps = map[string]func(context.Context, *visualservo.Robot) error{
	"follow":   visualservo.Follow,
	"estimate": visualservo.Estimate,
	"snapshot": visualservo.Snapshot,
}

const validSteps = "follow, estimate, snapshot"

func main() {
	credsPath := flag.String("creds", "", "path to robot credentials JSON file (default: VIAM_* environment variables)")
	step := flag.String("step", "follow", "step to run: "+validSteps)
	imagePath := flag.String("image", "", "run the pipeline once on an image file instead of a robot")
	cameraName := flag.String("camera", "", "name of the camera component to read frames from")
	calibPath := flag.String("calibration", "calibration/duckiebot.json", "path to camera calibration JSON file")
	profile := flag.Int("profile", 0, "calibration profile: 0=rectified, 1=rectified_distorted, 2=raw, 3=raw_distorted, 4=alternate")
	debugDir := flag.String("debug-dir", "", "directory for annotated frames and pattern clouds (optional)")
	flag.Parse()

	logger := logging.NewLogger("visual-servo-cli")

	if *imagePath != "" {
		if err := runImage(*imagePath, *calibPath, *profile, logger); err != nil {
			logger.Fatal(err)
		}
		return
	}

	// Validate step name.
	if _, ok := steps[*step]; !ok {
		logger.Fatalf("unknown step %q; valid steps: %s", *step, validSteps)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	machine, err := connect(ctx, *credsPath, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer machine.Close(context.Background())

	logger.Info("Connected to robot")

	cfg := servopose.DefaultConfig()
	cfg.Profile = servopose.ProfileID(*profile)

	r, err := visualservo.NewRobot(ctx, machine, logger, visualservo.Options{
		CameraName:      *cameraName,
		CalibrationPath: *calibPath,
		Config:          &cfg,
		DebugDir:        *debugDir,
	})
	if err != nil {
		logger.Fatal(err)
	}

	logger.Infof("=== Running step: %s ===", *step)

	if err := steps[*step](ctx, r); err != nil {
		logger.Fatal(err)
	}

	seen, found := r.Stats()
	logger.Infof("Frames: %d seen, %d with pattern", seen, found)
}

// connect dials the machine named by the credentials file, or falls back to
// the VIAM_* environment variables when no file is given.
func connect(ctx context.Context, credsPath string, logger logging.Logger) (robot.Robot, error) {
	if credsPath == "" {
		return vmodutils.ConnectToMachineFromEnv(ctx, logger)
	}

	robotCreds, err := creds.Load(credsPath)
	if err != nil {
		return nil, err
	}

	return client.New(
		ctx,
		robotCreds.Address,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			robotCreds.EntityID,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: robotCreds.APIKey,
			})),
	)
}

// runImage runs the estimation pipeline on a single decoded image file and
// prints the result. No robot connection is made.
func runImage(path, calibPath string, profile int, logger logging.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	set, err := servopose.LoadCalibrationSet(calibPath)
	if err != nil {
		return err
	}

	cfg := servopose.DefaultConfig()
	cfg.Profile = servopose.ProfileID(profile)

	estimator, err := servopose.NewEstimator(&cfg, set)
	if err != nil {
		return err
	}

	result, err := estimator.Estimate(context.Background(), img)
	if err != nil {
		return err
	}
	if !result.Found {
		logger.Info("Pattern not found in image")
		return nil
	}

	// Print estimation summary.
	logger.Infof("Pattern found: %d dots", len(result.ImagePoints))
	logger.Infof("Translation: (%.3f, %.3f, %.3f)m", result.Pose.Translation.X, result.Pose.Translation.Y, result.Pose.Translation.Z)
	logger.Infof("Rotation: (%.3f, %.3f, %.3f)rad", result.Pose.Rotation.X, result.Pose.Rotation.Y, result.Pose.Rotation.Z)
	logger.Infof("Target: forward=%.3fm lateral=%.3fm heading=%.1fdeg",
		result.Target.Position.X, result.Target.Position.Z, result.Target.HeadingDeg)

	return nil
}
