package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	visualservo "github.com/jerome-labonte-udem/duckietown-visual-servo"
	"github.com/jerome-labonte-udem/duckietown-visual-servo/internal/creds"
	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	"go.viam.com/utils/rpc"
)

func main() {
	credsPath := flag.String("creds", "", "path to robot credentials JSON file (default: VIAM_* environment variables)")
	cameraName := flag.String("camera", "", "name of the camera component to read frames from")
	calibPath := flag.String("calibration", "calibration/duckiebot.json", "path to camera calibration JSON file")
	profile := flag.Int("profile", 0, "calibration profile: 0=rectified, 1=rectified_distorted, 2=raw, 3=raw_distorted, 4=alternate")
	debugDir := flag.String("debug-dir", "", "directory for annotated frames and pattern clouds (optional)")
	flag.Parse()

	logger := logging.NewDebugLogger("visual-servo")

	robotCreds, err := creds.Load(*credsPath)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	machine, err := client.New(
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
	if err != nil {
		logger.Fatal(err)
	}
	defer machine.Close(context.Background())

	logger.Info("Connected to robot")
	logger.Info("Resources:", machine.ResourceNames())

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

	if err := visualservo.Follow(ctx, r); err != nil {
		logger.Fatal(err)
	}
}
