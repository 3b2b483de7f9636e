package cloud

import (
	"gonum.org/v1/gonum/mat"
)

// Kabsch computes the proper rotation R minimizing Σ‖R·source[i] − target[i]‖².
// Both point sets must already be centered by the caller.
//
// H = targetᵗ·source is factored as U·Σ·Vᵗ and R = U·Vᵗ. When that candidate is a
// reflection (det < 0) the last row of Vᵗ is negated before recomposing, so the
// result always has determinant +1.
//
// Degenerate input (colinear or coincident points) still yields a rotation, with
// an unresolved spin about the degenerate axis. Empty or mismatched input, or a
// failed factorization, returns the identity.
func Kabsch(source, target []Vec3) Mat3 {
	n := len(source)
	if n == 0 || n != len(target) {
		return Identity3()
	}

	// Cross-covariance H[i][j] = Σ target[k][i] * source[k][j]
	h := mat.NewDense(3, 3, nil)
	for k := 0; k < n; k++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				h.Set(i, j, h.At(i, j)+target[k][i]*source[k][j])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return Identity3()
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	r := composeRotation(&u, &v)
	if r.Det() < 0 {
		// Last row of Vᵗ is the last column of V
		for i := 0; i < 3; i++ {
			v.Set(i, 2, -v.At(i, 2))
		}
		r = composeRotation(&u, &v)
	}
	return r
}

// composeRotation returns U·Vᵗ as a Mat3
func composeRotation(u, v *mat.Dense) Mat3 {
	var prod mat.Dense
	prod.Mul(u, v.T())

	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = prod.At(i, j)
		}
	}
	return r
}

// centroidTranslation is the translation placing the transformed hidden centroid
// on the observed centroid
func centroidTranslation(rotation Mat3, scale float64, hidden, observed []Vec3) Vec3 {
	return Centroid(observed).Sub(rotation.MulVec(Centroid(hidden)).Scale(scale))
}
