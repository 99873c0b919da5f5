package servopose

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"go.viam.com/rdk/spatialmath"
)

// minDepth keeps reprojection away from the camera plane during refinement.
const minDepth = 1e-6

// SolvePose recovers the rigid transform from the pattern frame to the camera
// frame given the pattern's dot centers in one frame. It exploits the pattern
// being flat: a homography between the plate and the ideal image plane is
// estimated with the normalized DLT, decomposed into an initial rotation and
// translation, and the result is polished by minimizing pixel reprojection
// error with a Nelder-Mead simplex.
func SolvePose(pattern *CirclePattern, imagePoints []r2.Point, profile *CameraProfile, cfg SolverConfig) (*PoseEstimate, error) {
	obj := pattern.ObjectPoints()
	if len(imagePoints) != len(obj) {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrPointCountMismatch, len(imagePoints), len(obj))
	}

	// Work in ideal normalized coordinates so the homography absorbs neither
	// intrinsics nor distortion.
	ideal := make([]r2.Point, len(imagePoints))
	for i, p := range imagePoints {
		ideal[i] = profile.Undistort(p)
	}

	homog, err := planarHomography(obj, ideal, cfg.DegeneracyRatio)
	if err != nil {
		return nil, err
	}
	rot, trans, err := decomposeHomography(homog)
	if err != nil {
		return nil, err
	}
	rvec, err := rotationVector(rot)
	if err != nil {
		return nil, err
	}

	x0 := []float64{rvec.X, rvec.Y, rvec.Z, trans.X, trans.Y, trans.Z}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return meanSquaredReprojection(obj, imagePoints, profile, x)
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: cfg.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   cfg.ConvergenceTol,
			Relative:   cfg.ConvergenceTol,
			Iterations: cfg.ConvergenceIters,
		},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolveNotConverged, err)
	}

	// A pose is usable when its residual is small, even if the refiner ran
	// out of budget before formally converging.
	best := result.X
	rms := math.Sqrt(meanSquaredReprojection(obj, imagePoints, profile, best))
	if math.IsNaN(rms) || rms > cfg.MaxReprojectionError {
		return nil, fmt.Errorf("%w: rms reprojection %.2fpx, status %v", ErrSolveNotConverged, rms, result.Status)
	}

	return &PoseEstimate{
		Rotation:    r3.Vector{X: best[0], Y: best[1], Z: best[2]},
		Translation: r3.Vector{X: best[3], Y: best[4], Z: best[5]},
	}, nil
}

// Transform returns the estimate as a rigid transform from the pattern frame
// to the camera frame.
func (p *PoseEstimate) Transform() spatialmath.Pose {
	return poseFromParams([]float64{
		p.Rotation.X, p.Rotation.Y, p.Rotation.Z,
		p.Translation.X, p.Translation.Y, p.Translation.Z,
	})
}

// poseFromParams builds a spatial pose from packed axis-angle rotation and
// translation parameters.
func poseFromParams(x []float64) spatialmath.Pose {
	axis := r3.Vector{X: x[0], Y: x[1], Z: x[2]}
	theta := axis.Norm()
	var orient spatialmath.Orientation
	if theta < 1e-12 {
		orient = spatialmath.NewZeroOrientation()
	} else {
		unit := axis.Mul(1 / theta)
		orient = &spatialmath.R4AA{Theta: theta, RX: unit.X, RY: unit.Y, RZ: unit.Z}
	}
	return spatialmath.NewPose(r3.Vector{X: x[3], Y: x[4], Z: x[5]}, orient)
}

// meanSquaredReprojection scores a packed pose by the mean squared pixel error
// of the pattern dots it predicts.
func meanSquaredReprojection(obj []r3.Vector, img []r2.Point, profile *CameraProfile, x []float64) float64 {
	pose := poseFromParams(x)
	var sum float64
	for i, op := range obj {
		pt := spatialmath.Compose(pose, spatialmath.NewPoseFromPoint(op)).Point()
		if pt.Z < minDepth {
			return math.Inf(1)
		}
		pred := profile.Project(pt)
		dx := pred.X - img[i].X
		dy := pred.Y - img[i].Y
		sum += dx*dx + dy*dy
	}
	return sum / float64(len(obj))
}

// similarity is a 2D normalizing transform and its inverse in homogeneous form.
type similarity struct {
	fwd *mat.Dense
	inv *mat.Dense
}

// hartleyNormalize translates points to a zero centroid and scales their mean
// distance from it to sqrt(2), which conditions the DLT system.
func hartleyNormalize(pts []r2.Point) ([]r2.Point, similarity) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= n
	s := 1.0
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}

	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{X: (p.X - cx) * s, Y: (p.Y - cy) * s}
	}
	return out, similarity{
		fwd: mat.NewDense(3, 3, []float64{s, 0, -s * cx, 0, s, -s * cy, 0, 0, 1}),
		inv: mat.NewDense(3, 3, []float64{1 / s, 0, cx, 0, 1 / s, cy, 0, 0, 1}),
	}
}

// planarHomography estimates the homography mapping plate coordinates to ideal
// image coordinates with the normalized DLT. The smallest singular vector of
// the stacked constraint matrix is the homography; the second-smallest
// singular value tells whether the correspondences constrain it uniquely.
func planarHomography(obj []r3.Vector, img []r2.Point, degeneracyRatio float64) (*mat.Dense, error) {
	n := len(obj)
	if n < 4 {
		return nil, fmt.Errorf("%w: need at least 4 correspondences", ErrDegenerateSolve)
	}

	plate := make([]r2.Point, n)
	for i, op := range obj {
		plate[i] = r2.Point{X: op.X, Y: op.Y}
	}
	plateN, tPlate := hartleyNormalize(plate)
	imgN, tImg := hartleyNormalize(img)

	a := mat.NewDense(2*n, 9, nil)
	for i := range plateN {
		px, py := plateN[i].X, plateN[i].Y
		u, v := imgN[i].X, imgN[i].Y
		a.SetRow(2*i, []float64{px, py, 1, 0, 0, 0, -u * px, -u * py, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, px, py, 1, -v * px, -v * py, -v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("%w: homography factorization failed", ErrDegenerateSolve)
	}
	vals := svd.Values(nil)
	if vals[7] <= degeneracyRatio*vals[0] {
		return nil, fmt.Errorf("%w: correspondences do not constrain a homography", ErrDegenerateSolve)
	}

	var v mat.Dense
	svd.VTo(&v)
	hNorm := mat.NewDense(3, 3, []float64{
		v.At(0, 8), v.At(1, 8), v.At(2, 8),
		v.At(3, 8), v.At(4, 8), v.At(5, 8),
		v.At(6, 8), v.At(7, 8), v.At(8, 8),
	})

	// Undo the normalizations.
	var tmp, out mat.Dense
	tmp.Mul(hNorm, tPlate.fwd)
	out.Mul(tImg.inv, &tmp)
	return &out, nil
}

// decomposeHomography splits a plate-to-image homography into rotation and
// translation. For a plane at z = 0, H is [r1 r2 t] up to scale; the third
// rotation column is r1 x r2 and the closest proper rotation is taken by SVD.
// The sign is fixed so the plate lies in front of the camera.
func decomposeHomography(homog *mat.Dense) (*mat.Dense, r3.Vector, error) {
	h1 := r3.Vector{X: homog.At(0, 0), Y: homog.At(1, 0), Z: homog.At(2, 0)}
	h2 := r3.Vector{X: homog.At(0, 1), Y: homog.At(1, 1), Z: homog.At(2, 1)}
	h3 := r3.Vector{X: homog.At(0, 2), Y: homog.At(1, 2), Z: homog.At(2, 2)}

	norm := (h1.Norm() + h2.Norm()) / 2
	if norm < 1e-12 {
		return nil, r3.Vector{}, fmt.Errorf("%w: homography has no scale", ErrDegenerateSolve)
	}
	col1 := h1.Mul(1 / norm)
	col2 := h2.Mul(1 / norm)
	trans := h3.Mul(1 / norm)
	if trans.Z < 0 {
		col1 = col1.Mul(-1)
		col2 = col2.Mul(-1)
		trans = trans.Mul(-1)
	}
	col3 := col1.Cross(col2)

	approx := mat.NewDense(3, 3, []float64{
		col1.X, col2.X, col3.X,
		col1.Y, col2.Y, col3.Y,
		col1.Z, col2.Z, col3.Z,
	})
	rot, err := nearestRotation(approx)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	return rot, trans, nil
}

// nearestRotation projects a near-rotation matrix onto the closest proper
// rotation in the Frobenius sense.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, fmt.Errorf("%w: rotation factorization failed", ErrDegenerateSolve)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rot mat.Dense
	rot.Mul(&u, v.T())
	if mat.Det(&rot) < 0 {
		flip := mat.NewDiagDense(3, []float64{1, 1, -1})
		var uf mat.Dense
		uf.Mul(&u, flip)
		rot.Mul(&uf, v.T())
	}
	return &rot, nil
}

// rotationVector converts a rotation matrix to its axis-angle vector form.
func rotationVector(rot *mat.Dense) (r3.Vector, error) {
	rm, err := spatialmath.NewRotationMatrix([]float64{
		rot.At(0, 0), rot.At(0, 1), rot.At(0, 2),
		rot.At(1, 0), rot.At(1, 1), rot.At(1, 2),
		rot.At(2, 0), rot.At(2, 1), rot.At(2, 2),
	})
	if err != nil {
		return r3.Vector{}, fmt.Errorf("%w: %v", ErrDegenerateSolve, err)
	}
	aa := rm.AxisAngles()
	return r3.Vector{X: aa.RX * aa.Theta, Y: aa.RY * aa.Theta, Z: aa.RZ * aa.Theta}, nil
}
