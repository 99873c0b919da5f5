package servopose

import (
	"image/color"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
)

// syntheticGrid lays out rows x cols blob centers with the given pixel pitch.
func syntheticGrid(rows, cols int, originX, originY, pitchX, pitchY float64) []Blob {
	blobs := make([]Blob, 0, rows*cols)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			blobs = append(blobs, Blob{
				Center: r2.Point{X: originX + float64(i)*pitchX, Y: originY + float64(j)*pitchY},
				Area:   40,
			})
		}
	}
	return blobs
}

func shuffleBlobs(blobs []Blob, seed int64) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(blobs), func(i, j int) { blobs[i], blobs[j] = blobs[j], blobs[i] })
}

func TestOrderGrid_RowMajor(t *testing.T) {
	blobs := syntheticGrid(3, 8, 120, 80, 20, 22)
	shuffleBlobs(blobs, 1)

	points, ok := orderGrid(blobs, 3, 8, DefaultConfig().Detector)
	if !ok {
		t.Fatal("orderGrid rejected a clean grid")
	}
	if len(points) != 24 {
		t.Fatalf("got %d points, want 24", len(points))
	}

	for j := 0; j < 3; j++ {
		for i := 0; i < 8; i++ {
			want := r2.Point{X: 120 + float64(i)*20, Y: 80 + float64(j)*22}
			got := points[i+j*8]
			if got.Sub(want).Norm() > 1e-9 {
				t.Fatalf("point (%d,%d) = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestOrderGrid_JitteredGrid(t *testing.T) {
	blobs := syntheticGrid(3, 8, 200, 150, 18, 19)
	//nolint:gosec
	rng := rand.New(rand.NewSource(7))
	for i := range blobs {
		blobs[i].Center.X += (rng.Float64() - 0.5) * 1.0
		blobs[i].Center.Y += (rng.Float64() - 0.5) * 1.0
	}
	shuffleBlobs(blobs, 2)

	points, ok := orderGrid(blobs, 3, 8, DefaultConfig().Detector)
	if !ok {
		t.Fatal("orderGrid rejected a mildly jittered grid")
	}

	// Ordering must survive the jitter: top-left first, bottom-right last.
	if points[0].X > points[7].X || points[0].Y > points[16].Y {
		t.Errorf("ordering broken: first %v, row end %v, column end %v", points[0], points[7], points[16])
	}
}

func TestOrderGrid_WrongCount(t *testing.T) {
	blobs := syntheticGrid(3, 8, 100, 100, 20, 20)
	if _, ok := orderGrid(blobs[:23], 3, 8, DefaultConfig().Detector); ok {
		t.Error("accepted 23 blobs for a 24-dot pattern")
	}
	if _, ok := orderGrid(nil, 3, 8, DefaultConfig().Detector); ok {
		t.Error("accepted an empty blob set")
	}
}

func TestOrderGrid_RejectsDisplacedDot(t *testing.T) {
	blobs := syntheticGrid(3, 8, 100, 100, 20, 22)
	// Push one dot halfway toward the next row.
	blobs[4].Center.Y += 11

	if _, ok := orderGrid(blobs, 3, 8, DefaultConfig().Detector); ok {
		t.Error("accepted a grid with a dot far off its row")
	}
}

func TestOrderGrid_RejectsTransposedShape(t *testing.T) {
	// 8 rows of 3 has the right dot count but the wrong shape.
	blobs := syntheticGrid(8, 3, 100, 100, 20, 20)
	if _, ok := orderGrid(blobs, 3, 8, DefaultConfig().Detector); ok {
		t.Error("accepted an 8x3 layout as a 3x8 grid")
	}
}

func TestDetectGrid_RenderedFrame(t *testing.T) {
	profile := testProfile(t, ProfileRaw)
	pattern := testPattern(t)
	params := []float64{0, 0, 0, 0.01, 0.005, 0.4}

	img := renderPattern(profile, pattern, params, 3)
	det := DetectGrid(img, pattern, DefaultConfig().Detector)
	if !det.Found {
		t.Fatal("pattern not found in rendered frame")
	}

	want := projectPattern(profile, pattern, params)
	if len(det.Points) != len(want) {
		t.Fatalf("got %d points, want %d", len(det.Points), len(want))
	}
	var worst float64
	for i := range want {
		if d := det.Points[i].Sub(want[i]).Norm(); d > worst {
			worst = d
		}
	}
	if worst > 0.35 {
		t.Errorf("worst center error %.3fpx above tolerance", worst)
	}
	t.Logf("worst center error: %.3fpx", worst)
}

func TestDetectGrid_EmptyFrame(t *testing.T) {
	pattern := testPattern(t)
	det := DetectGrid(whiteFrame(640, 480), pattern, DefaultConfig().Detector)
	if det.Found {
		t.Fatal("found a pattern in a blank frame")
	}
	if det.Points != nil {
		t.Errorf("blank frame produced %d points", len(det.Points))
	}
}

func TestDetectGrid_PartialPattern(t *testing.T) {
	profile := testProfile(t, ProfileRaw)
	pattern := testPattern(t)
	params := []float64{0, 0, 0, 0.01, 0.005, 0.4}

	img := renderPattern(profile, pattern, params, 3)
	// Paint over two dots; 22 blobs can never be the 24-dot grid.
	pts := projectPattern(profile, pattern, params)
	for _, p := range pts[:2] {
		for y := int(p.Y) - 5; y <= int(p.Y)+5; y++ {
			for x := int(p.X) - 5; x <= int(p.X)+5; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	if det := DetectGrid(img, pattern, DefaultConfig().Detector); det.Found {
		t.Fatal("found a full grid with two dots occluded")
	}
}

func TestLineFitMaxResidual(t *testing.T) {
	pts := []r2.Point{{X: 0, Y: 1}, {X: 1, Y: 3}, {X: 2, Y: 5}, {X: 3, Y: 7}}
	if r := lineFitMaxResidual(pts); r > 1e-12 {
		t.Errorf("collinear points gave residual %g", r)
	}

	pts[2].Y += 2
	if r := lineFitMaxResidual(pts); r < 0.5 {
		t.Errorf("off-line point gave residual %g, want > 0.5", r)
	}
}
