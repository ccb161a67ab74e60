package geom

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVec3_Basics(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -1, Y: 0, Z: 2}

	assert.Equal(t, Vec3{X: 0, Y: 2, Z: 5}, a.Add(b))
	assert.Equal(t, Vec3{X: 2, Y: 2, Z: 1}, a.Sub(b))
	assert.InDelta(t, 5.0, a.Dot(b), 1e-12)
	assert.InDelta(t, math.Sqrt(14), a.Length(), 1e-12)
	assert.InDelta(t, 1.0, a.Normalize().Length(), 1e-12)
	assert.Equal(t, Vec3{}, Vec3{}.Normalize())
}

func TestVec3_CrossRightHanded(t *testing.T) {
	x := Vec3{X: 1}
	y := Vec3{Y: 1}
	assert.True(t, x.Cross(y).ApproxEqual(Vec3{Z: 1}, 1e-12))
	assert.True(t, y.Cross(x).ApproxEqual(Vec3{Z: -1}, 1e-12))
}

func TestQuat_RotateAxisAngle(t *testing.T) {
	// quarter turn about Z takes +X to +Y
	q := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	got := q.Rotate(Vec3{X: 1})
	assert.True(t, got.ApproxEqual(Vec3{Y: 1}, 1e-12), "got %+v", got)

	// identity leaves vectors alone
	got = QuatIdentity().Rotate(Vec3{X: 1, Y: 2, Z: 3})
	assert.True(t, got.ApproxEqual(Vec3{X: 1, Y: 2, Z: 3}, 1e-12))
}

func TestQuat_RotationPreservesLength(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 1, Y: 1, Z: 0}.Normalize(), 1.234)
	v := Vec3{X: 3, Y: -2, Z: 5}
	assert.InDelta(t, v.Length(), q.Rotate(v).Length(), 1e-12)
}

func TestQuatBetween(t *testing.T) {
	tests := []struct {
		name string
		a, b Vec3
	}{
		{"orthogonal", Vec3{X: 1}, Vec3{Y: 1}},
		{"diagonal", Vec3{X: 1, Y: 1, Z: 1}.Normalize(), Vec3{Y: 1}},
		{"same", Vec3{Y: 1}, Vec3{Y: 1}},
		{"opposite", Vec3{Y: 1}, Vec3{Y: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QuatBetween(tt.a, tt.b)
			got := q.Rotate(tt.a)
			require.True(t, got.ApproxEqual(tt.b, 1e-9), "got %+v want %+v", got, tt.b)
		})
	}
}

func TestQuat_MulComposes(t *testing.T) {
	qa := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	qb := QuatFromAxisAngle(Vec3{X: 1}, math.Pi/2)

	// apply qb first, then qa
	composed := qa.Mul(qb)
	v := Vec3{Y: 1}
	step := qa.Rotate(qb.Rotate(v))
	assert.True(t, composed.Rotate(v).ApproxEqual(step, 1e-12))
}

func TestQuat_IntegrateStaysUnit(t *testing.T) {
	q := QuatIdentity()
	w := Vec3{X: 3, Y: -7, Z: 2}
	for i := 0; i < 1000; i++ {
		q = q.Integrate(w, 16*time.Millisecond)
	}
	norm := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestQuat_IntegrateMatchesAxisAngle(t *testing.T) {
	// integrating a constant spin in small steps approximates the
	// closed-form rotation
	w := Vec3{Z: 1} // 1 rad/s about Z
	q := QuatIdentity()
	steps := 10000
	dt := time.Second / time.Duration(steps)
	for i := 0; i < steps; i++ {
		q = q.Integrate(w, dt)
	}
	want := QuatFromAxisAngle(Vec3{Z: 1}, 1)
	got := q.Rotate(Vec3{X: 1})
	assert.True(t, got.ApproxEqual(want.Rotate(Vec3{X: 1}), 1e-3), "got %+v", got)
}
