package cloud

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func vecsEqual(a, b Vec3, tol float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func matsEqual(a, b Mat3, tol float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a[i][j]-b[i][j]) > tol {
				return false
			}
		}
	}
	return true
}

// isProperRotation checks RᵗR = I and det(R) = +1
func isProperRotation(r Mat3, tol float64) bool {
	return matsEqual(r.T().Mul(r), Identity3(), tol) && math.Abs(r.Det()-1) < tol
}

func TestVecOps(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, -1, 0.5}

	if got := a.Add(b); got != (Vec3{5, 1, 3.5}) {
		t.Errorf("Add = %v", got)
	}
	if got := a.Sub(b); got != (Vec3{-3, 3, 2.5}) {
		t.Errorf("Sub = %v", got)
	}
	if got := a.Scale(2); got != (Vec3{2, 4, 6}) {
		t.Errorf("Scale = %v", got)
	}
	if got := (Vec3{3, 4, 0}).Norm(); !almostEqual(got, 5) {
		t.Errorf("Norm = %v, want 5", got)
	}
}

func TestMat3(t *testing.T) {
	m := Mat3{{1, 2, 3}, {0, 1, 4}, {5, 6, 0}}

	if got := m.Det(); !almostEqual(got, 1) {
		t.Errorf("Det = %v, want 1", got)
	}
	if got := m.Mul(Identity3()); got != m {
		t.Errorf("M·I = %v, want %v", got, m)
	}
	if got := m.T().T(); got != m {
		t.Errorf("transpose twice = %v", got)
	}
	if got := m.MulVec(Vec3{1, 0, 0}); got != (Vec3{1, 0, 5}) {
		t.Errorf("MulVec = %v", got)
	}
}

func TestRotationAboutAxis(t *testing.T) {
	tests := []struct {
		name  string
		axis  Vec3
		angle float64
		in    Vec3
		want  Vec3
	}{
		{"z 90", Vec3{0, 0, 1}, math.Pi / 2, Vec3{1, 0, 0}, Vec3{0, 1, 0}},
		{"x 180", Vec3{2, 0, 0}, math.Pi, Vec3{0, 1, 0}, Vec3{0, -1, 0}},
		{"y 90", Vec3{0, 1, 0}, math.Pi / 2, Vec3{0, 0, 1}, Vec3{1, 0, 0}},
		{"zero axis", Vec3{}, 1.0, Vec3{1, 2, 3}, Vec3{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RotationAboutAxis(tt.axis, tt.angle)
			if !isProperRotation(r, 1e-9) {
				t.Fatalf("not a proper rotation: %v", r)
			}
			if got := r.MulVec(tt.in); !vecsEqual(got, tt.want, 1e-9) {
				t.Errorf("rotated %v = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRotationFromQuaternion(t *testing.T) {
	// 90° about z: (cos 45°, 0, 0, sin 45°), deliberately unnormalized
	r := RotationFromQuaternion(2, 0, 0, 2)
	if !matsEqual(r, RotationAboutAxis(Vec3{0, 0, 1}, math.Pi/2), 1e-9) {
		t.Errorf("quaternion rotation = %v", r)
	}
	if got := RotationFromQuaternion(0, 0, 0, 0); got != Identity3() {
		t.Errorf("zero quaternion = %v, want identity", got)
	}
}

func TestRigidTransform_ApplyInvert(t *testing.T) {
	rt := RigidTransform{
		Rotation:    RotationAboutAxis(Vec3{1, 1, 0}, 0.7),
		Scale:       1.25,
		Translation: Vec3{10, -3, 2},
	}

	x := Vec3{105, 99, 116}
	y := rt.Apply(x)
	if back := rt.Invert(y); !vecsEqual(back, x, 1e-9) {
		t.Errorf("Invert(Apply(x)) = %v, want %v", back, x)
	}

	all := rt.ApplyAll([]Vec3{x, {0, 0, 0}})
	if len(all) != 2 || all[0] != y || all[1] != rt.Translation {
		t.Errorf("ApplyAll = %v", all)
	}
}

func TestRigidTransform_InvertZeroScale(t *testing.T) {
	rt := RigidTransform{Rotation: Identity3(), Translation: Vec3{1, 1, 1}}
	got := rt.Invert(Vec3{2, 3, 4})
	if got != (Vec3{1, 2, 3}) {
		t.Errorf("Invert with zero scale = %v", got)
	}
}

func TestCentroidAndCenter(t *testing.T) {
	pts := []Vec3{{0, 0, 0}, {2, 4, 6}}
	if c := Centroid(pts); c != (Vec3{1, 2, 3}) {
		t.Errorf("Centroid = %v", c)
	}
	if c := Centroid(nil); c != (Vec3{}) {
		t.Errorf("Centroid(nil) = %v", c)
	}

	centered := CenterPoints(pts)
	if centered[0] != (Vec3{-1, -2, -3}) || centered[1] != (Vec3{1, 2, 3}) {
		t.Errorf("CenterPoints = %v", centered)
	}
}

func TestResidual(t *testing.T) {
	obs := []Vec3{{0, 0, 0}, {1, 1, 1}}
	pred := []Vec3{{3, 4, 0}, {1, 1, 1}}
	if got := Residual(obs, pred); !almostEqual(got, 5) {
		t.Errorf("Residual = %v, want 5", got)
	}
	if got := Residual(obs, pred[:1]); !almostEqual(got, 5) {
		t.Errorf("Residual over prefix = %v, want 5", got)
	}
	if got := Residual(obs, obs); got != 0 {
		t.Errorf("Residual of identical sets = %v", got)
	}
}
