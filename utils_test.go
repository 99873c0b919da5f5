package visualservo

import (
	"image"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	servopose "github.com/jerome-labonte-udem/duckietown-visual-servo/servo_pose"
	"go.viam.com/rdk/pointcloud"
)

func TestAnnotateDetection(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 40, 30))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	out := annotateDetection(src, []r2.Point{{X: 20, Y: 15}})

	r, g, b, _ := out.At(20, 15).RGBA()
	if r != 0xffff || g != 0 || b != 0 {
		t.Errorf("center pixel = (%#x, %#x, %#x), want pure red", r, g, b)
	}
	r, _, _, _ = out.At(20+crossArm, 15).RGBA()
	if r != 0xffff {
		t.Errorf("cross arm end not marked")
	}
	r, g, b, _ = out.At(20+crossArm+1, 15).RGBA()
	if r != g || g != b {
		t.Errorf("pixel past the cross arm was marked")
	}

	// The source frame must not be touched.
	if src.GrayAt(20, 15).Y != 200 {
		t.Errorf("annotate modified the source image")
	}
}

func TestAnnotateDetection_OutOfBounds(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 10, 10))

	// Markers near and past the border must clip, not panic.
	out := annotateDetection(src, []r2.Point{
		{X: -3, Y: 5},
		{X: 25, Y: 5},
		{X: 9, Y: 9},
	})
	if out.Bounds() != src.Bounds() {
		t.Errorf("bounds changed: %v vs %v", out.Bounds(), src.Bounds())
	}
}

func TestPatternCloud(t *testing.T) {
	pattern, err := servopose.NewCirclePattern(3, 8, 0.0125)
	if err != nil {
		t.Fatal(err)
	}
	pose := &servopose.PoseEstimate{
		Translation: r3.Vector{X: 0.05, Y: -0.02, Z: 0.5},
	}

	cloud, err := patternCloud(pattern, pose)
	if err != nil {
		t.Fatal(err)
	}
	if cloud.Size() != pattern.Size() {
		t.Fatalf("cloud has %d points, want %d", cloud.Size(), pattern.Size())
	}

	// With no rotation the cloud centroid sits at the pattern origin, scaled
	// to the frame system's millimeters.
	var sum r3.Vector
	minX, maxX := math.Inf(1), math.Inf(-1)
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		sum = sum.Add(p)
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		return true
	})
	centroid := sum.Mul(1 / float64(cloud.Size()))
	want := pose.Translation.Mul(1000)
	if centroid.Sub(want).Norm() > 1e-6 {
		t.Errorf("centroid = %v, want %v", centroid, want)
	}

	wantWidth := 0.0125 * 7 * 1000
	if math.Abs((maxX-minX)-wantWidth) > 1e-6 {
		t.Errorf("cloud width = %vmm, want %vmm", maxX-minX, wantWidth)
	}
}
