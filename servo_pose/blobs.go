package servopose

import (
	"image"
	"image/color"

	"github.com/golang/geo/r2"
)

// levelBlob is one connected dark component found at a single threshold level.
type levelBlob struct {
	center r2.Point
	area   float64
}

// blobGroup accumulates components that reappear across threshold levels.
type blobGroup struct {
	center r2.Point // running mean of member centers
	area   float64  // running mean of member areas
	count  int
}

// findBlobs extracts dark blob centers from a grayscale frame. It sweeps a
// range of binarization thresholds, collects connected dark components at each
// level, and merges components whose centers coincide across levels. A blob is
// kept only when it shows up at MinRepeatability or more levels, which rejects
// noise that survives a single threshold.
func findBlobs(img *image.Gray, cfg DetectorConfig) []Blob {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	visited := make([]bool, w*h)
	queue := make([]int, 0, 256)
	var groups []blobGroup

	for thresh := cfg.ThresholdMin; thresh <= cfg.ThresholdMax; thresh += cfg.ThresholdStep {
		level := darkComponents(img, visited, queue, uint8(thresh), cfg)
		mergeLevel(level, &groups, cfg.MinDistBetweenBlobs)
	}

	var out []Blob
	for _, g := range groups {
		if g.count < cfg.MinRepeatability {
			continue
		}
		out = append(out, Blob{Center: g.center, Area: g.area})
	}
	return out
}

// darkComponents finds the connected components of pixels at or below thresh,
// 4-connected, and returns the centroid and area of each component that passes
// the area filter. The visited and queue buffers are reused across levels.
func darkComponents(img *image.Gray, visited []bool, queue []int, thresh uint8, cfg DetectorConfig) []levelBlob {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	for i := range visited {
		visited[i] = false
	}

	dark := func(x, y int) bool {
		return img.Pix[img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)] <= thresh
	}

	var out []levelBlob
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || !dark(x, y) {
				continue
			}

			// Flood fill one component.
			queue = queue[:0]
			queue = append(queue, y*w+x)
			visited[y*w+x] = true
			var sumX, sumY float64
			count := 0
			for len(queue) > 0 {
				idx := queue[len(queue)-1]
				queue = queue[:len(queue)-1]
				cx, cy := idx%w, idx/w
				sumX += float64(cx)
				sumY += float64(cy)
				count++

				if cx > 0 && !visited[idx-1] && dark(cx-1, cy) {
					visited[idx-1] = true
					queue = append(queue, idx-1)
				}
				if cx < w-1 && !visited[idx+1] && dark(cx+1, cy) {
					visited[idx+1] = true
					queue = append(queue, idx+1)
				}
				if cy > 0 && !visited[idx-w] && dark(cx, cy-1) {
					visited[idx-w] = true
					queue = append(queue, idx-w)
				}
				if cy < h-1 && !visited[idx+w] && dark(cx, cy+1) {
					visited[idx+w] = true
					queue = append(queue, idx+w)
				}
			}

			if count < cfg.MinArea {
				continue
			}
			if cfg.MaxArea > 0 && count > cfg.MaxArea {
				continue
			}
			n := float64(count)
			out = append(out, levelBlob{
				center: r2.Point{X: sumX / n, Y: sumY / n},
				area:   n,
			})
		}
	}
	return out
}

// mergeLevel folds one level's components into the cross-level groups. A
// component joins the nearest group within minDist of its center, otherwise it
// starts a new group.
func mergeLevel(level []levelBlob, groups *[]blobGroup, minDist float64) {
	for _, lb := range level {
		best := -1
		bestDist := minDist
		for gi := range *groups {
			d := lb.center.Sub((*groups)[gi].center).Norm()
			if d < bestDist {
				best = gi
				bestDist = d
			}
		}
		if best < 0 {
			*groups = append(*groups, blobGroup{center: lb.center, area: lb.area, count: 1})
			continue
		}
		g := &(*groups)[best]
		n := float64(g.count)
		g.center = g.center.Mul(n).Add(lb.center).Mul(1 / (n + 1))
		g.area = (g.area*n + lb.area) / (n + 1)
		g.count++
	}
}

// toGray converts a frame to 8-bit grayscale, reusing the source when it
// already is one.
func toGray(img image.Image) *image.Gray {
	switch src := img.(type) {
	case *image.Gray:
		return src
	case *image.YCbCr:
		// JPEG frames decode to YCbCr; luma is already the gray channel.
		bounds := src.Bounds()
		out := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			yi := src.YOffset(bounds.Min.X, y)
			oi := out.PixOffset(bounds.Min.X, y)
			copy(out.Pix[oi:oi+bounds.Dx()], src.Y[yi:yi+bounds.Dx()])
		}
		return out
	default:
		bounds := img.Bounds()
		out := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				out.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
			}
		}
		return out
	}
}
