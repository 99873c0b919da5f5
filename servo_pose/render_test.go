package servopose

import (
	"image"
	"image/color"
	"testing"

	"github.com/golang/geo/r2"

	"go.viam.com/rdk/spatialmath"
)

// loadTestCalibration reads the checked-in camera table used across tests.
func loadTestCalibration(t *testing.T) *CalibrationSet {
	t.Helper()
	set, err := LoadCalibrationSet("../calibration/duckiebot.json")
	if err != nil {
		t.Fatalf("loading calibration: %v", err)
	}
	return set
}

// testProfile returns one profile of the checked-in camera table.
func testProfile(t *testing.T, id ProfileID) *CameraProfile {
	t.Helper()
	profile, err := loadTestCalibration(t).Profile(id)
	if err != nil {
		t.Fatalf("profile %v: %v", id, err)
	}
	return profile
}

// testPattern returns the stock 3x8 dot grid.
func testPattern(t *testing.T) *CirclePattern {
	t.Helper()
	pattern, err := NewCirclePattern(3, 8, 0.0125)
	if err != nil {
		t.Fatalf("building pattern: %v", err)
	}
	return pattern
}

// projectPattern projects every pattern dot through a pose given as packed
// axis-angle and translation parameters, with the profile's distortion.
func projectPattern(profile *CameraProfile, pattern *CirclePattern, params []float64) []r2.Point {
	pose := poseFromParams(params)
	obj := pattern.ObjectPoints()
	out := make([]r2.Point, len(obj))
	for i, op := range obj {
		pt := spatialmath.Compose(pose, spatialmath.NewPoseFromPoint(op)).Point()
		out[i] = profile.Project(pt)
	}
	return out
}

// renderPattern draws the posed pattern as filled dark disks on a white frame
// sized to the profile's calibrated resolution.
func renderPattern(profile *CameraProfile, pattern *CirclePattern, params []float64, radius int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, profile.Intrinsics.Width, profile.Intrinsics.Height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, c := range projectPattern(profile, pattern, params) {
		drawDisk(img, c.X, c.Y, radius)
	}
	return img
}

// drawDisk fills a disk of black pixels centered at (cx, cy).
func drawDisk(img *image.Gray, cx, cy float64, radius int) {
	r := float64(radius)
	for y := int(cy - r - 1); y <= int(cy+r+1); y++ {
		for x := int(cx - r - 1); x <= int(cx+r+1); x++ {
			if !(image.Pt(x, y).In(img.Rect)) {
				continue
			}
			dx := float64(x) - cx
			dy := float64(y) - cy
			if dx*dx+dy*dy <= r*r {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
}
