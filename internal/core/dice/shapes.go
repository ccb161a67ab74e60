package dice

import (
	"math"

	"github.com/tumbledice/tumble/internal/core/geom"
)

// Shape identifies one of the supported polyhedral dice by its face count.
type Shape int

const (
	D4  Shape = 4
	D6  Shape = 6
	D8  Shape = 8
	D10 Shape = 10
	D12 Shape = 12
	D20 Shape = 20
)

// Shapes lists every supported shape in ascending face count.
var Shapes = []Shape{D4, D6, D8, D10, D12, D20}

// ParseShape validates a face count received from a client.
func ParseShape(sides int) (Shape, error) {
	s := Shape(sides)
	switch s {
	case D4, D6, D8, D10, D12, D20:
		return s, nil
	}
	return 0, ErrUnknownShape
}

func (s Shape) Sides() int { return int(s) }

// FaceNormal pairs a face value with that face's outward unit normal in the
// die's rest-pose frame.
type FaceNormal struct {
	Value     int
	Direction geom.Vec3
}

// Table is the full face-normal set for one shape. Tables are built once at
// init and must be treated as immutable.
type Table struct {
	Shape     Shape
	Normals   []FaceNormal
	DefaultUp int
}

var tables map[Shape]Table

// TableFor returns the canonical face-normal table for a shape.
func TableFor(s Shape) (Table, error) {
	t, ok := tables[s]
	if !ok {
		return Table{}, ErrUnknownShape
	}
	return t, nil
}

func init() {
	tables = map[Shape]Table{
		D4:  buildD4(),
		D6:  buildD6(),
		D8:  buildPaired(D8, d8Reps(), []int{8, 7, 6, 5}),
		D10: buildPaired(D10, d10Reps(), []int{10, 6, 2, 8, 4}),
		D12: buildPaired(D12, d12Reps(), []int{12, 10, 11, 9, 7, 5}),
		D20: buildPaired(D20, d20Reps(), []int{20, 18, 16, 14, 12, 10, 8, 6, 4, 2}),
	}
}

// buildD4 places face 4 straight up and the remaining three faces tilted
// below the equator, 120 degrees apart. A tetrahedron has no antipodal faces
// so values 1..3 are assigned around the ring.
func buildD4() Table {
	normals := []FaceNormal{{Value: 4, Direction: geom.Up}}
	// lower faces: y = -1/3, horizontal radius 2*sqrt(2)/3
	r := 2 * math.Sqrt2 / 3
	for i := 0; i < 3; i++ {
		theta := 2 * math.Pi * float64(i) / 3
		normals = append(normals, FaceNormal{
			Value:     i + 1,
			Direction: geom.Vec3{X: r * math.Cos(theta), Y: -1.0 / 3, Z: r * math.Sin(theta)},
		})
	}
	return Table{Shape: D4, Normals: normals, DefaultUp: 4}
}

// buildD6 uses the standard western convention: opposite faces sum to 7.
func buildD6() Table {
	return Table{
		Shape:     D6,
		DefaultUp: 6,
		Normals: []FaceNormal{
			{Value: 6, Direction: geom.Vec3{Y: 1}},
			{Value: 1, Direction: geom.Vec3{Y: -1}},
			{Value: 5, Direction: geom.Vec3{X: 1}},
			{Value: 2, Direction: geom.Vec3{X: -1}},
			{Value: 4, Direction: geom.Vec3{Z: 1}},
			{Value: 3, Direction: geom.Vec3{Z: -1}},
		},
	}
}

// buildPaired assembles a table from antipodal face pairs. reps[i] carries
// values[i]; its negation carries sides+1-values[i]. The whole set is then
// rotated so reps[0] points exactly up in the rest pose, making values[0]
// the default-up face.
func buildPaired(shape Shape, reps []geom.Vec3, values []int) Table {
	align := geom.QuatBetween(reps[0].Normalize(), geom.Up)
	normals := make([]FaceNormal, 0, len(reps)*2)
	for i, r := range reps {
		n := align.Rotate(r.Normalize())
		normals = append(normals,
			FaceNormal{Value: values[i], Direction: n},
			FaceNormal{Value: shape.Sides() + 1 - values[i], Direction: n.Neg()},
		)
	}
	return Table{Shape: shape, Normals: normals, DefaultUp: values[0]}
}

// Octahedron faces point at alternating cube corners; one corner per
// antipodal pair.
func d8Reps() []geom.Vec3 {
	return []geom.Vec3{
		{X: 1, Y: 1, Z: 1},
		{X: -1, Y: 1, Z: 1},
		{X: 1, Y: 1, Z: -1},
		{X: -1, Y: 1, Z: -1},
	}
}

// Pentagonal trapezohedron: an upper ring of five kite faces; the lower ring
// is the antipodal set, which lands naturally on the half-step offset.
func d10Reps() []geom.Vec3 {
	tilt := math.Atan(0.5)
	reps := make([]geom.Vec3, 0, 5)
	for i := 0; i < 5; i++ {
		theta := 2 * math.Pi * float64(i) / 5
		reps = append(reps, geom.Vec3{
			X: math.Cos(tilt) * math.Cos(theta),
			Y: math.Sin(tilt),
			Z: math.Cos(tilt) * math.Sin(theta),
		})
	}
	return reps
}

// Dodecahedron face normals are the icosahedron vertices: cyclic
// permutations of (0, ±1, ±phi).
func d12Reps() []geom.Vec3 {
	phi := (1 + math.Sqrt(5)) / 2
	return []geom.Vec3{
		{Y: 1, Z: phi},
		{Y: 1, Z: -phi},
		{X: 1, Y: phi},
		{X: -1, Y: phi},
		{X: phi, Z: 1},
		{X: phi, Z: -1},
	}
}

// Icosahedron face normals are the dodecahedron vertices.
func d20Reps() []geom.Vec3 {
	phi := (1 + math.Sqrt(5)) / 2
	inv := 1 / phi
	return []geom.Vec3{
		{X: 1, Y: 1, Z: 1},
		{X: 1, Y: 1, Z: -1},
		{X: 1, Y: -1, Z: 1},
		{X: -1, Y: 1, Z: 1},
		{Y: inv, Z: phi},
		{Y: inv, Z: -phi},
		{X: inv, Y: phi},
		{X: -inv, Y: phi},
		{X: phi, Z: inv},
		{X: phi, Z: -inv},
	}
}
