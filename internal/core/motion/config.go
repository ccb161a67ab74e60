package motion

import (
	"errors"
	"strings"
	"time"

	"github.com/tumbledice/tumble/internal/core/geom"
)

// StandardGravity is the canonical downward acceleration in m/s².
const StandardGravity = 9.81

var ErrInvalidAxisMap = errors.New("invalid axis map")

// AxisMap selects which device axis feeds each world axis and with which
// sign. Each selector is "x", "y" or "z", optionally prefixed with "-".
type AxisMap struct {
	X string `yaml:"x"`
	Y string `yaml:"y"`
	Z string `yaml:"z"`
}

// DefaultAxisMap maps a device lying flat (gravity along -Z in device
// space) onto canonical world-down gravity.
func DefaultAxisMap() AxisMap {
	return AxisMap{X: "x", Y: "z", Z: "-y"}
}

// IdentityAxisMap passes device axes through unchanged.
func IdentityAxisMap() AxisMap {
	return AxisMap{X: "x", Y: "y", Z: "z"}
}

type axisPick struct {
	index int // 0=x 1=y 2=z
	sign  float64
}

type compiledAxisMap [3]axisPick

func (m AxisMap) compile() (compiledAxisMap, error) {
	var out compiledAxisMap
	for i, sel := range []string{m.X, m.Y, m.Z} {
		sign := 1.0
		if strings.HasPrefix(sel, "-") {
			sign = -1
			sel = sel[1:]
		}
		switch sel {
		case "x":
			out[i] = axisPick{0, sign}
		case "y":
			out[i] = axisPick{1, sign}
		case "z":
			out[i] = axisPick{2, sign}
		default:
			return out, ErrInvalidAxisMap
		}
	}
	return out, nil
}

func (c compiledAxisMap) apply(v geom.Vec3) geom.Vec3 {
	dev := [3]float64{v.X, v.Y, v.Z}
	return geom.Vec3{
		X: c[0].sign * dev[c[0].index],
		Y: c[1].sign * dev[c[1].index],
		Z: c[2].sign * dev[c[2].index],
	}
}

// Config holds the motion-mapping thresholds and calibration.
type Config struct {
	// TiltDeadzone zeroes any tilt axis below this magnitude (m/s²).
	TiltDeadzone float64 `yaml:"tilt_deadzone"`

	// SnapThreshold snaps the whole tilt vector to canonical down gravity
	// when its total magnitude falls below this value, suppressing jitter
	// from a device resting flat.
	SnapThreshold float64 `yaml:"snap_threshold"`

	// GravityScale multiplies the remapped tilt and pseudo-force vectors.
	GravityScale float64 `yaml:"gravity_scale"`

	// PseudoForceDeadzone is the minimum linear-acceleration magnitude
	// (m/s²) before device movement contributes an inertial pseudo-force.
	PseudoForceDeadzone float64 `yaml:"pseudo_force_deadzone"`

	// ShakeThreshold is the raw acceleration magnitude (m/s²) that flips
	// the shake flag; ShakeDecay is how long the flag stays up without a
	// refreshing sample.
	ShakeThreshold float64       `yaml:"shake_threshold"`
	ShakeDecay     time.Duration `yaml:"shake_decay"`

	// DisplayInterval is the refresh rate of the throttled display
	// snapshot read by UI paths.
	DisplayInterval time.Duration `yaml:"display_interval"`

	AxisMap AxisMap `yaml:"axis_map"`
}

// DefaultConfig returns the stock calibration.
func DefaultConfig() Config {
	return Config{
		TiltDeadzone:        0.75,
		SnapThreshold:       1.5,
		GravityScale:        1.0,
		PseudoForceDeadzone: 1.0,
		ShakeThreshold:      25,
		ShakeDecay:          600 * time.Millisecond,
		DisplayInterval:     100 * time.Millisecond,
		AxisMap:             DefaultAxisMap(),
	}
}
