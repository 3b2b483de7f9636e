package cloud

import (
	"math/rand"
	"testing"
)

func randomCloud(n int, spread float64, rng *rand.Rand) []Vec3 {
	pts := make([]Vec3, n)
	for i := range pts {
		pts[i] = Vec3{rng.Float64() * spread, rng.Float64() * spread, rng.Float64() * spread}
	}
	return pts
}

func rotateAll(r Mat3, pts []Vec3) []Vec3 {
	out := make([]Vec3, len(pts))
	for i, p := range pts {
		out[i] = r.MulVec(p)
	}
	return out
}

func TestKabsch_Identity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := CenterPoints(randomCloud(20, 10, rng))

	r := Kabsch(src, src)
	if !matsEqual(r, Identity3(), 1e-9) {
		t.Errorf("Kabsch(A, A) = %v, want identity", r)
	}
}

func TestKabsch_RecoversRotation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		want := randomRotation(rng)
		src := CenterPoints(randomCloud(30, 50, rng))
		dst := rotateAll(want, src)

		got := Kabsch(src, dst)
		if !isProperRotation(got, 1e-9) {
			t.Fatalf("trial %d: result is not a proper rotation: %v", trial, got)
		}
		if !matsEqual(got, want, 1e-8) {
			t.Errorf("trial %d: got %v, want %v", trial, got, want)
		}
	}
}

func TestKabsch_ReflectionCorrected(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	src := CenterPoints(randomCloud(25, 10, rng))

	// Mirror through the xy-plane: the unconstrained optimum has det = -1
	mirror := Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}}
	dst := rotateAll(mirror, src)

	r := Kabsch(src, dst)
	if !isProperRotation(r, 1e-9) {
		t.Errorf("reflection input produced improper result %v (det %v)", r, r.Det())
	}
}

func TestKabsch_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		source []Vec3
		target []Vec3
	}{
		{"empty", nil, nil},
		{"mismatched", []Vec3{{1, 0, 0}}, []Vec3{{1, 0, 0}, {0, 1, 0}}},
		{"single centered point", []Vec3{{0, 0, 0}}, []Vec3{{0, 0, 0}}},
		{"colinear", []Vec3{{-1, 0, 0}, {0, 0, 0}, {1, 0, 0}}, []Vec3{{0, -1, 0}, {0, 0, 0}, {0, 1, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Kabsch(tt.source, tt.target)
			if !isProperRotation(r, 1e-9) {
				t.Errorf("degenerate input produced %v", r)
			}
		})
	}
}

func TestCentroidTranslation(t *testing.T) {
	rot := RotationAboutAxis(Vec3{0, 0, 1}, 0.3)
	hidden := []Vec3{{1, 2, 3}, {4, 5, 6}, {7, 8, 10}}
	want := RigidTransform{Rotation: rot, Scale: 2, Translation: Vec3{5, -5, 1}}
	observed := want.ApplyAll(hidden)

	got := centroidTranslation(rot, 2, hidden, observed)
	if !vecsEqual(got, want.Translation, 1e-9) {
		t.Errorf("centroidTranslation = %v, want %v", got, want.Translation)
	}
}
