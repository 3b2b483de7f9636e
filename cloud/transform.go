package cloud

import "math"

// Identity3 returns the 3x3 identity matrix
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Add returns v + u
func (v Vec3) Add(u Vec3) Vec3 {
	return Vec3{v[0] + u[0], v[1] + u[1], v[2] + u[2]}
}

// Sub returns v - u
func (v Vec3) Sub(u Vec3) Vec3 {
	return Vec3{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
}

// Scale returns v multiplied by s
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Dot returns the scalar product of v and u
func (v Vec3) Dot(u Vec3) float64 {
	return v[0]*u[0] + v[1]*u[1] + v[2]*u[2]
}

// Cross returns v × u
func (v Vec3) Cross(u Vec3) Vec3 {
	return Vec3{v[1]*u[2] - v[2]*u[1], v[2]*u[0] - v[0]*u[2], v[0]*u[1] - v[1]*u[0]}
}

// Norm returns the Euclidean length of v
func (v Vec3) Norm() float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// MulVec returns m·v
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Mul returns m·n
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// T returns the transpose of m
func (m Mat3) T() Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Det returns the determinant of m
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// RotationAboutAxis builds the proper rotation of angle radians about axis
// (Rodrigues' formula). A zero axis yields the identity.
func RotationAboutAxis(axis Vec3, angle float64) Mat3 {
	n := axis.Norm()
	if n < 1e-12 {
		return Identity3()
	}
	x, y, z := axis[0]/n, axis[1]/n, axis[2]/n
	c := math.Cos(angle)
	s := math.Sin(angle)
	k := 1 - c
	return Mat3{
		{c + x*x*k, x*y*k - z*s, x*z*k + y*s},
		{y*x*k + z*s, c + y*y*k, y*z*k - x*s},
		{z*x*k - y*s, z*y*k + x*s, c + z*z*k},
	}
}

// Apply maps a hidden-space point into observation space: s·B·x + t
func (rt RigidTransform) Apply(x Vec3) Vec3 {
	return rt.Rotation.MulVec(x).Scale(rt.Scale).Add(rt.Translation)
}

// ApplyAll maps every point through the transform
func (rt RigidTransform) ApplyAll(points []Vec3) []Vec3 {
	result := make([]Vec3, len(points))
	for i, p := range points {
		result[i] = rt.Apply(p)
	}
	return result
}

// Invert maps an observation back into hidden space: Bᵗ·(y − t) / s.
// A zero scale returns the un-rotated offset unchanged.
func (rt RigidTransform) Invert(y Vec3) Vec3 {
	v := rt.Rotation.T().MulVec(y.Sub(rt.Translation))
	if rt.Scale == 0 {
		return v
	}
	return v.Scale(1 / rt.Scale)
}

// Centroid calculates the column means of a point set
func Centroid(points []Vec3) Vec3 {
	if len(points) == 0 {
		return Vec3{}
	}
	var sum Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// CenterPoints subtracts the centroid from every point
func CenterPoints(points []Vec3) []Vec3 {
	c := Centroid(points)
	result := make([]Vec3, len(points))
	for i, p := range points {
		result[i] = p.Sub(c)
	}
	return result
}

// Residual is the Frobenius norm of (observed − predicted).
// Mismatched lengths compare only the common prefix.
func Residual(observed, predicted []Vec3) float64 {
	n := len(observed)
	if len(predicted) < n {
		n = len(predicted)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := observed[i].Sub(predicted[i])
		sum += d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
	}
	return math.Sqrt(sum)
}

// RotationFromQuaternion builds the rotation for quaternion (w, x, y, z).
// The quaternion is normalized first; a zero quaternion yields the identity.
func RotationFromQuaternion(w, x, y, z float64) Mat3 {
	n := math.Sqrt(w*w + x*x + y*y + z*z)
	if n < 1e-12 {
		return Identity3()
	}
	w, x, y, z = w/n, x/n, y/n, z/n
	return Mat3{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}
