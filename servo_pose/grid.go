package servopose

import (
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// rowGapRatio is how much larger the vertical gaps between rows must be than
// any gap inside a row before a blob set is accepted as the grid.
const rowGapRatio = 1.5

// DetectGrid locates the dot pattern in a frame and returns its dot centers in
// row-major pattern order. A frame without the full pattern in view yields
// Found == false; that is a normal outcome, not an error.
func DetectGrid(img image.Image, pattern *CirclePattern, cfg DetectorConfig) GridDetection {
	if img == nil || pattern == nil {
		return GridDetection{}
	}
	blobs := findBlobs(toGray(img), cfg)
	points, ok := orderGrid(blobs, pattern.Rows(), pattern.Cols(), cfg)
	if !ok {
		return GridDetection{}
	}
	return GridDetection{Found: true, Points: points}
}

// orderGrid arranges blob centers into row-major pattern order: rows top to
// bottom, dots within a row left to right. The arrangement must actually look
// like the expected grid, so stray dark spots cannot masquerade as the
// pattern. Row grouping works on vertical gaps, which assumes the camera is
// mounted close to level; see TargetFromPose for the matching heading caveat.
func orderGrid(blobs []Blob, rows, cols int, cfg DetectorConfig) ([]r2.Point, bool) {
	if len(blobs) != rows*cols {
		return nil, false
	}

	centers := make([]r2.Point, len(blobs))
	for i, b := range blobs {
		centers[i] = b.Center
	}
	sort.Slice(centers, func(i, j int) bool { return centers[i].Y < centers[j].Y })

	pitch := medianNeighborDist(centers)
	if pitch <= 0 {
		return nil, false
	}

	// Split the y-sorted centers into rows at the largest vertical gaps.
	type gap struct {
		index int
		size  float64
	}
	gaps := make([]gap, 0, len(centers)-1)
	for i := 0; i+1 < len(centers); i++ {
		gaps = append(gaps, gap{index: i, size: centers[i+1].Y - centers[i].Y})
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].size > gaps[j].size })

	chosen := gaps[:rows-1]
	if len(gaps) > len(chosen) {
		minChosen := chosen[len(chosen)-1].size
		maxRest := gaps[len(chosen)].size
		if minChosen < maxRest*rowGapRatio {
			return nil, false
		}
	}

	splits := make([]int, 0, len(chosen))
	for _, g := range chosen {
		splits = append(splits, g.index)
	}
	sort.Ints(splits)

	tol := cfg.GridResidualFrac * pitch
	out := make([]r2.Point, 0, rows*cols)
	start := 0
	for _, split := range append(splits, len(centers)-1) {
		row := centers[start : split+1]
		if len(row) != cols {
			return nil, false
		}
		sort.Slice(row, func(i, j int) bool { return row[i].X < row[j].X })
		if !rowCoherent(row, tol) {
			return nil, false
		}
		out = append(out, row...)
		start = split + 1
	}
	return out, true
}

// rowCoherent reports whether an x-sorted run of centers behaves like one
// pattern row: spacing stays consistent and the dots lie on a line within tol.
func rowCoherent(row []r2.Point, tol float64) bool {
	dxs := make([]float64, 0, len(row)-1)
	for i := 1; i < len(row); i++ {
		dx := row[i].X - row[i-1].X
		if dx <= 0 {
			return false
		}
		dxs = append(dxs, dx)
	}
	med := median(dxs)
	if med <= 0 {
		return false
	}
	// Perspective stretches spacing across a row but not this much.
	for _, dx := range dxs {
		if dx < 0.4*med || dx > 2.5*med {
			return false
		}
	}
	return lineFitMaxResidual(row) <= tol
}

// lineFitMaxResidual fits y = a + b*x by least squares and returns the largest
// absolute vertical residual.
func lineFitMaxResidual(pts []r2.Point) float64 {
	n := float64(len(pts))
	var sx, sy, sxx, sxy float64
	for _, p := range pts {
		sx += p.X
		sy += p.Y
		sxx += p.X * p.X
		sxy += p.X * p.Y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return math.Inf(1)
	}
	b := (n*sxy - sx*sy) / den
	a := (sy - b*sx) / n

	var worst float64
	for _, p := range pts {
		if r := math.Abs(p.Y - (a + b*p.X)); r > worst {
			worst = r
		}
	}
	return worst
}

// medianNeighborDist returns the median nearest-neighbor distance, a scale
// estimate for the dot pitch in pixels.
func medianNeighborDist(pts []r2.Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	dists := make([]float64, len(pts))
	for i := range pts {
		best := math.Inf(1)
		for j := range pts {
			if i == j {
				continue
			}
			if d := pts[i].Sub(pts[j]).Norm(); d < best {
				best = d
			}
		}
		dists[i] = best
	}
	return median(dists)
}

func median(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	c := append([]float64(nil), s...)
	sort.Float64s(c)
	if len(c)%2 == 1 {
		return c[len(c)/2]
	}
	return (c[len(c)/2-1] + c[len(c)/2]) / 2
}
