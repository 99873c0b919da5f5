package servopose

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/rimage/transform"
)

// CalibrationFile is the on-disk schema for a camera calibration table. The
// intrinsics and distortion blocks use the same field names as the transform
// package so a table can be shared with other tooling.
type CalibrationFile struct {
	Name              string                            `json:"name"`
	RawIntrinsics     transform.PinholeCameraIntrinsics `json:"raw_intrinsics"`
	NominalDistortion transform.BrownConrady            `json:"nominal_distortion"`
	Alternate         AlternateCalibration              `json:"alternate"`
}

// AlternateCalibration holds the full calibration of a second camera unit.
type AlternateCalibration struct {
	Intrinsics transform.PinholeCameraIntrinsics `json:"intrinsics"`
	Distortion transform.BrownConrady            `json:"distortion"`
}

// CameraProfile pairs an intrinsic matrix with a distortion model and provides
// the two mappings the pipeline needs: camera-frame point to pixel, and pixel
// back to ideal normalized image coordinates.
type CameraProfile struct {
	ID         ProfileID
	Intrinsics transform.PinholeCameraIntrinsics
	Distortion *transform.BrownConrady

	inverse *transform.InverseBrownConrady
}

// CalibrationSet holds the five camera profiles derived from one calibration file.
type CalibrationSet struct {
	name     string
	profiles map[ProfileID]*CameraProfile
}

// LoadCalibrationSet reads a calibration file and derives its camera profiles.
func LoadCalibrationSet(path string) (*CalibrationSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibration file: %w", err)
	}
	var file CalibrationFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing calibration file: %w", err)
	}
	return NewCalibrationSet(&file)
}

// NewCalibrationSet derives the camera profiles from a calibration definition.
// Profiles 0 and 1 share rectified intrinsics computed from the raw intrinsics
// and the nominal distortion; profiles 2 and 3 use the raw intrinsics directly.
// Profile 4 is only available when the file carries an alternate calibration.
func NewCalibrationSet(file *CalibrationFile) (*CalibrationSet, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: no calibration definition", ErrBadCalibration)
	}
	if err := checkIntrinsics(file.RawIntrinsics, "raw"); err != nil {
		return nil, err
	}

	rectified, err := rectifyIntrinsics(file.RawIntrinsics, &file.NominalDistortion)
	if err != nil {
		return nil, err
	}
	nominal := file.NominalDistortion

	set := &CalibrationSet{
		name:     file.Name,
		profiles: map[ProfileID]*CameraProfile{},
	}
	set.add(ProfileRectified, rectified, &transform.BrownConrady{})
	set.add(ProfileRectifiedDistorted, rectified, &nominal)
	set.add(ProfileRaw, file.RawIntrinsics, &transform.BrownConrady{})
	set.add(ProfileRawDistorted, file.RawIntrinsics, &nominal)

	if file.Alternate.Intrinsics.Width != 0 {
		if err := checkIntrinsics(file.Alternate.Intrinsics, "alternate"); err != nil {
			return nil, err
		}
		alt := file.Alternate.Distortion
		set.add(ProfileAlternate, file.Alternate.Intrinsics, &alt)
	}
	return set, nil
}

func (s *CalibrationSet) add(id ProfileID, in transform.PinholeCameraIntrinsics, dist *transform.BrownConrady) {
	s.profiles[id] = &CameraProfile{
		ID:         id,
		Intrinsics: in,
		Distortion: dist,
		inverse:    invertDistortion(dist),
	}
}

// Name returns the calibration identifier from the file.
func (s *CalibrationSet) Name() string { return s.name }

// Profile returns the camera profile with the given id.
func (s *CalibrationSet) Profile(id ProfileID) (*CameraProfile, error) {
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProfile, id)
	}
	return p, nil
}

// Resolution returns the pixel dimensions the profiles are calibrated for.
func (s *CalibrationSet) Resolution(id ProfileID) (int, int, error) {
	p, err := s.Profile(id)
	if err != nil {
		return 0, 0, err
	}
	return p.Intrinsics.Width, p.Intrinsics.Height, nil
}

// Project maps a camera-frame point to pixel coordinates, applying the
// profile's distortion model. The point must be in front of the camera.
// Projection stays sub-pixel, so this does not go through PointToPixel,
// which rounds to whole pixels.
func (p *CameraProfile) Project(pt r3.Vector) r2.Point {
	xd, yd := p.Distortion.Transform(pt.X/pt.Z, pt.Y/pt.Z)
	return r2.Point{
		X: xd*p.Intrinsics.Fx + p.Intrinsics.Ppx,
		Y: yd*p.Intrinsics.Fy + p.Intrinsics.Ppy,
	}
}

// Undistort maps a pixel back to ideal normalized image coordinates,
// inverting the profile's distortion model.
func (p *CameraProfile) Undistort(pt r2.Point) r2.Point {
	xd, yd, _ := p.Intrinsics.PixelToPoint(pt.X, pt.Y, 1)
	xu, yu := p.inverse.Transform(xd, yd)
	return r2.Point{X: xu, Y: yu}
}

func checkIntrinsics(in transform.PinholeCameraIntrinsics, label string) error {
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("%w: %s intrinsics missing resolution", ErrBadCalibration, label)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("%w: %s intrinsics missing focal length", ErrBadCalibration, label)
	}
	return nil
}

func invertDistortion(d *transform.BrownConrady) *transform.InverseBrownConrady {
	if d == nil {
		return &transform.InverseBrownConrady{}
	}
	return &transform.InverseBrownConrady{
		RadialK1:     d.RadialK1,
		RadialK2:     d.RadialK2,
		RadialK3:     d.RadialK3,
		TangentialP1: d.TangentialP1,
		TangentialP2: d.TangentialP2,
	}
}

// rectifyGridN is the border sampling density for rectification, matching the
// 9x9 grid OpenCV uses when computing an optimal new camera matrix.
const rectifyGridN = 9

// rectifyIntrinsics computes the intrinsics of the undistorted view of a
// camera, with the free-scaling parameter fixed at zero: the largest axis
// aligned rectangle of the undistorted frame that contains only valid pixels
// is scaled to fill the full resolution.
func rectifyIntrinsics(raw transform.PinholeCameraIntrinsics, dist *transform.BrownConrady) (transform.PinholeCameraIntrinsics, error) {
	inv := invertDistortion(dist)
	w := float64(raw.Width)
	h := float64(raw.Height)

	// Undistort a border grid of pixels to normalized coordinates and keep
	// the innermost bound seen along each edge.
	iX0, iY0 := math.Inf(-1), math.Inf(-1)
	iX1, iY1 := math.Inf(1), math.Inf(1)
	for y := 0; y < rectifyGridN; y++ {
		for x := 0; x < rectifyGridN; x++ {
			px := float64(x) * w / float64(rectifyGridN-1)
			py := float64(y) * h / float64(rectifyGridN-1)
			xd := (px - raw.Ppx) / raw.Fx
			yd := (py - raw.Ppy) / raw.Fy
			xu, yu := inv.Transform(xd, yd)
			if x == 0 && xu > iX0 {
				iX0 = xu
			}
			if x == rectifyGridN-1 && xu < iX1 {
				iX1 = xu
			}
			if y == 0 && yu > iY0 {
				iY0 = yu
			}
			if y == rectifyGridN-1 && yu < iY1 {
				iY1 = yu
			}
		}
	}

	innerW := iX1 - iX0
	innerH := iY1 - iY0
	if !(innerW > 0 && innerH > 0) || math.IsInf(innerW, 0) || math.IsInf(innerH, 0) {
		return transform.PinholeCameraIntrinsics{}, fmt.Errorf("%w: distortion model folds the image borders", ErrBadCalibration)
	}

	fx := (w - 1) / innerW
	fy := (h - 1) / innerH
	return transform.PinholeCameraIntrinsics{
		Width:  raw.Width,
		Height: raw.Height,
		Fx:     fx,
		Fy:     fy,
		Ppx:    -fx * iX0,
		Ppy:    -fy * iY0,
	}, nil
}
