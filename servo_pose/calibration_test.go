package servopose

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/rimage/transform"
)

func TestLoadCalibrationSet_Profiles(t *testing.T) {
	set := loadTestCalibration(t)
	if set.Name() != "duckiebot" {
		t.Errorf("name = %q, want duckiebot", set.Name())
	}

	rectified := testProfile(t, ProfileRectified)
	rectifiedDist := testProfile(t, ProfileRectifiedDistorted)
	raw := testProfile(t, ProfileRaw)
	rawDist := testProfile(t, ProfileRawDistorted)
	alternate := testProfile(t, ProfileAlternate)

	// Profiles 0/1 share rectified intrinsics, 2/3 share the raw ones.
	if rectified.Intrinsics != rectifiedDist.Intrinsics {
		t.Errorf("rectified intrinsics differ between profiles 0 and 1")
	}
	if raw.Intrinsics != rawDist.Intrinsics {
		t.Errorf("raw intrinsics differ between profiles 2 and 3")
	}
	if raw.Intrinsics.Fx != 305.5718893575089 {
		t.Errorf("raw fx = %v, want value from calibration file", raw.Intrinsics.Fx)
	}
	if alternate.Intrinsics.Fx != 307.7379294605756 {
		t.Errorf("alternate fx = %v, want value from calibration file", alternate.Intrinsics.Fx)
	}

	// Rectification with a real distortion model must change the matrix.
	if math.Abs(rectified.Intrinsics.Fx-raw.Intrinsics.Fx) < 1.0 {
		t.Errorf("rectified fx %v too close to raw fx %v", rectified.Intrinsics.Fx, raw.Intrinsics.Fx)
	}
	if rectified.Intrinsics.Fx < 50 || rectified.Intrinsics.Fx > 1000 {
		t.Errorf("rectified fx %v outside plausible range", rectified.Intrinsics.Fx)
	}
	if rectified.Intrinsics.Width != 640 || rectified.Intrinsics.Height != 480 {
		t.Errorf("rectified resolution = %dx%d, want 640x480",
			rectified.Intrinsics.Width, rectified.Intrinsics.Height)
	}

	// Distortion assignment per profile.
	if *rectified.Distortion != (transform.BrownConrady{}) {
		t.Errorf("profile 0 distortion = %+v, want none", *rectified.Distortion)
	}
	if rectifiedDist.Distortion.RadialK1 != -0.2 {
		t.Errorf("profile 1 rk1 = %v, want -0.2", rectifiedDist.Distortion.RadialK1)
	}
	if rawDist.Distortion.RadialK2 != 0.0305 {
		t.Errorf("profile 3 rk2 = %v, want 0.0305", rawDist.Distortion.RadialK2)
	}
	if alternate.Distortion.RadialK1 != -0.2565888993516047 {
		t.Errorf("profile 4 rk1 = %v, want alternate value", alternate.Distortion.RadialK1)
	}

	t.Logf("rectified intrinsics: fx=%.2f fy=%.2f ppx=%.2f ppy=%.2f",
		rectified.Intrinsics.Fx, rectified.Intrinsics.Fy,
		rectified.Intrinsics.Ppx, rectified.Intrinsics.Ppy)
}

func TestCalibrationSet_UnknownProfile(t *testing.T) {
	set := loadTestCalibration(t)
	for _, id := range []ProfileID{-1, 5, 99} {
		if _, err := set.Profile(id); !errors.Is(err, ErrUnknownProfile) {
			t.Errorf("Profile(%d): got %v, want ErrUnknownProfile", id, err)
		}
	}
}

func TestCameraProfile_ProjectUndistortRoundTrip(t *testing.T) {
	//nolint:gosec
	rng := rand.New(rand.NewSource(42))

	for _, id := range []ProfileID{ProfileRectifiedDistorted, ProfileRawDistorted, ProfileAlternate} {
		profile := testProfile(t, id)
		for i := 0; i < 200; i++ {
			xn := (rng.Float64() - 0.5) * 1.4
			yn := (rng.Float64() - 0.5) * 1.0
			z := 0.2 + rng.Float64()*2

			px := profile.Project(r3.Vector{X: xn * z, Y: yn * z, Z: z})
			back := profile.Undistort(px)

			if math.Abs(back.X-xn) > 1e-9 || math.Abs(back.Y-yn) > 1e-9 {
				t.Fatalf("profile %v: normalized (%.6f, %.6f) round-tripped to (%.6f, %.6f)",
					id, xn, yn, back.X, back.Y)
			}
		}
	}
}

func TestCameraProfile_NoDistortionIsPinhole(t *testing.T) {
	profile := testProfile(t, ProfileRaw)
	in := profile.Intrinsics

	px := profile.Project(r3.Vector{X: 0.05, Y: -0.02, Z: 0.5})
	wantX := 0.1*in.Fx + in.Ppx
	wantY := -0.04*in.Fy + in.Ppy
	if math.Abs(px.X-wantX) > 1e-9 || math.Abs(px.Y-wantY) > 1e-9 {
		t.Errorf("projection = %v, want (%v, %v)", px, wantX, wantY)
	}
}

func TestLoadCalibrationSet_MissingFile(t *testing.T) {
	if _, err := LoadCalibrationSet("testdata/does-not-exist.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewCalibrationSet_Invalid(t *testing.T) {
	if _, err := NewCalibrationSet(nil); !errors.Is(err, ErrBadCalibration) {
		t.Errorf("nil file: got %v, want ErrBadCalibration", err)
	}
	if _, err := NewCalibrationSet(&CalibrationFile{}); !errors.Is(err, ErrBadCalibration) {
		t.Errorf("empty file: got %v, want ErrBadCalibration", err)
	}

	bad := &CalibrationFile{
		RawIntrinsics: transform.PinholeCameraIntrinsics{Width: 640, Height: 480},
	}
	if _, err := NewCalibrationSet(bad); !errors.Is(err, ErrBadCalibration) {
		t.Errorf("missing focal length: got %v, want ErrBadCalibration", err)
	}
}

func TestNewCalibrationSet_NoAlternate(t *testing.T) {
	file := &CalibrationFile{
		Name: "minimal",
		RawIntrinsics: transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480,
			Fx: 300, Fy: 300, Ppx: 320, Ppy: 240,
		},
	}
	set, err := NewCalibrationSet(file)
	if err != nil {
		t.Fatalf("NewCalibrationSet failed: %v", err)
	}
	if _, err := set.Profile(ProfileRaw); err != nil {
		t.Errorf("raw profile missing: %v", err)
	}
	if _, err := set.Profile(ProfileAlternate); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("alternate profile: got %v, want ErrUnknownProfile", err)
	}

	// Zero distortion means rectification keeps the view, so projecting
	// through profiles 0 and 2 must agree to within a pixel.
	rectified, err := set.Profile(ProfileRectified)
	if err != nil {
		t.Fatalf("rectified profile: %v", err)
	}
	raw, _ := set.Profile(ProfileRaw)
	a := rectified.Project(r3.Vector{X: 0.1, Y: 0.05, Z: 1})
	b := raw.Project(r3.Vector{X: 0.1, Y: 0.05, Z: 1})
	if a.Sub(b).Norm() > 1.5 {
		t.Errorf("zero-distortion rectification moved projection by %.2fpx", a.Sub(b).Norm())
	}
}
