package geom

import (
	"math"
	"time"
)

// Quat is a rotation quaternion. W is the scalar part.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// QuatFromAxisAngle builds a quaternion rotating angle radians around axis.
// axis must be normalized.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	half := angle / 2
	s := math.Sin(half)
	return Quat{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: math.Cos(half),
	}
}

// QuatBetween returns the shortest rotation taking unit vector a to unit
// vector b. Antiparallel inputs rotate 180 degrees around an arbitrary
// perpendicular axis.
func QuatBetween(a, b Vec3) Quat {
	d := a.Dot(b)
	if d > 1-1e-9 {
		return QuatIdentity()
	}
	if d < -1+1e-9 {
		// pick any axis perpendicular to a
		axis := Vec3{X: 1}.Cross(a)
		if axis.Length() < 1e-9 {
			axis = Vec3{Y: 1}.Cross(a)
		}
		return QuatFromAxisAngle(axis.Normalize(), math.Pi)
	}
	axis := a.Cross(b)
	q := Quat{X: axis.X, Y: axis.Y, Z: axis.Z, W: 1 + d}
	return q.Normalize()
}

// Normalize returns a unit quaternion. Degenerate input yields identity.
func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if l < 1e-12 {
		return QuatIdentity()
	}
	inv := 1 / l
	return Quat{q.X * inv, q.Y * inv, q.Z * inv, q.W * inv}
}

// Mul returns the composition q*o (apply o first, then q).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	// v' = v + 2w(u x v) + 2(u x (u x v)), u = (X,Y,Z)
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Integrate advances the orientation by angular velocity w (rad/s, world
// frame) over dt seconds and renormalizes.
func (q Quat) Integrate(w Vec3, dt time.Duration) Quat {
	s := dt.Seconds()
	omega := Quat{X: w.X, Y: w.Y, Z: w.Z}
	dq := omega.Mul(q)
	half := s / 2
	return Quat{
		X: q.X + dq.X*half,
		Y: q.Y + dq.Y*half,
		Z: q.Z + dq.Z*half,
		W: q.W + dq.W*half,
	}.Normalize()
}
