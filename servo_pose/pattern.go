package servopose

import "github.com/golang/geo/r3"

// CirclePattern models the flat grid of dark dots mounted on the back of the
// lead vehicle. Dot centers live in the pattern's own frame: the origin is the
// grid centroid, x grows to the right along a row, y grows downward along a
// column, and z is zero everywhere on the plate.
type CirclePattern struct {
	rows    int
	cols    int
	spacing float64
	points  []r3.Vector
}

// NewCirclePattern builds the dot grid for the given dimensions. Spacing is the
// center-to-center distance between adjacent dots in meters.
func NewCirclePattern(rows, cols int, spacing float64) (*CirclePattern, error) {
	if rows < 2 || cols < 2 {
		return nil, ErrBadPatternSize
	}
	if spacing <= 0 {
		return nil, ErrBadSpacing
	}

	points := make([]r3.Vector, rows*cols)
	halfW := spacing * float64(cols-1) / 2
	halfH := spacing * float64(rows-1) / 2
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			points[i+j*cols] = r3.Vector{
				X: spacing*float64(i) - halfW,
				Y: spacing*float64(j) - halfH,
				Z: 0,
			}
		}
	}

	return &CirclePattern{
		rows:    rows,
		cols:    cols,
		spacing: spacing,
		points:  points,
	}, nil
}

// Rows returns the number of dot rows.
func (p *CirclePattern) Rows() int { return p.rows }

// Cols returns the number of dot columns.
func (p *CirclePattern) Cols() int { return p.cols }

// Spacing returns the center-to-center dot distance in meters.
func (p *CirclePattern) Spacing() float64 { return p.spacing }

// Size returns the total number of dots.
func (p *CirclePattern) Size() int { return p.rows * p.cols }

// ObjectPoints returns the dot centers in row-major order, index i + j*cols for
// column i of row j. The returned slice is a copy.
func (p *CirclePattern) ObjectPoints() []r3.Vector {
	out := make([]r3.Vector, len(p.points))
	copy(out, p.points)
	return out
}
