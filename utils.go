package visualservo

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"

	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/rimage"
	"go.viam.com/rdk/spatialmath"
)

// grabFrame pulls one decoded frame from a camera.
func grabFrame(ctx context.Context, cam camera.Camera) (image.Image, error) {
	imgs, _, err := cam.Images(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get images: %w", err)
	}
	if len(imgs) == 0 {
		return nil, fmt.Errorf("camera returned no images")
	}
	return imgs[0].Image(ctx)
}

// crossArm is the half-length of the detection markers in pixels.
const crossArm = 4

// annotateDetection copies the frame and draws a cross over every detected
// dot center.
func annotateDetection(img image.Image, points []r2.Point) image.Image {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	mark := color.RGBA{R: 255, A: 255}
	for _, p := range points {
		cx := bounds.Min.X + int(math.Round(p.X))
		cy := bounds.Min.Y + int(math.Round(p.Y))
		for d := -crossArm; d <= crossArm; d++ {
			if image.Pt(cx+d, cy).In(bounds) {
				rgba.Set(cx+d, cy, mark)
			}
			if image.Pt(cx, cy+d).In(bounds) {
				rgba.Set(cx, cy+d, mark)
			}
		}
	}
	return rgba
}

// saveDiagnostics writes an annotated frame and the solved pattern cloud for
// one detection into dir, numbered by the estimator's frame counter.
func saveDiagnostics(r *Robot, dir string, img image.Image, result *servopose.EstimateResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create debug dir: %w", err)
	}
	frame := r.estimator.Frames()

	annotated := annotateDetection(img, result.ImagePoints)
	pngPath := filepath.Join(dir, fmt.Sprintf("detect_%06d.png", frame))
	if err := rimage.SaveImage(annotated, pngPath); err != nil {
		return fmt.Errorf("save annotated frame: %w", err)
	}
	r.logger.Debugf("Saved annotated frame to %s", pngPath)

	cloud, err := patternCloud(r.estimator.Pattern(), result.Pose)
	if err != nil {
		return err
	}
	pcdPath := filepath.Join(dir, fmt.Sprintf("pattern_%06d.pcd", frame))
	if err := savePointCloudToPCD(cloud, pcdPath); err != nil {
		return fmt.Errorf("save pattern cloud: %w", err)
	}
	r.logger.Debugf("Saved pattern cloud to %s (%d points)", pcdPath, cloud.Size())
	return nil
}

// patternCloud places the pattern's dots at their solved camera-frame
// positions. Coordinates are scaled to millimeters, the frame system's unit.
func patternCloud(pattern *servopose.CirclePattern, pose *servopose.PoseEstimate) (pointcloud.PointCloud, error) {
	cloud := pointcloud.NewBasicEmpty()
	tf := pose.Transform()
	for _, op := range pattern.ObjectPoints() {
		pt := spatialmath.Compose(tf, spatialmath.NewPoseFromPoint(op)).Point()
		if err := cloud.Set(pt.Mul(1000), nil); err != nil {
			return nil, fmt.Errorf("add pattern point: %w", err)
		}
	}
	return cloud, nil
}

// savePointCloudToPCD writes a point cloud to a PCD file in binary format.
func savePointCloudToPCD(cloud pointcloud.PointCloud, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	if err := pointcloud.ToPCD(cloud, file, pointcloud.PCDBinary); err != nil {
		return fmt.Errorf("write PCD: %w", err)
	}

	return nil
}
