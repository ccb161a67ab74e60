package motion

import (
	"math"
	"time"

	"github.com/tumbledice/tumble/internal/core/geom"
)

// Sample is one raw device-motion reading. Sensor availability varies
// across hardware, so every acceleration field is optional.
type Sample struct {
	// AccelIncludingGravity is the accelerometer reading with gravity
	// folded in, in device space (m/s²).
	AccelIncludingGravity *geom.Vec3

	// LinearAccel is the gravity-free acceleration when the platform can
	// separate it; nil otherwise (degraded mode).
	LinearAccel *geom.Vec3

	// RotationRate is the gyroscope reading when present. The mapper does
	// not currently use it; it is carried for clients that log samples.
	RotationRate *geom.Vec3

	// Timestamp is the client-side capture time, carried for logging only.
	// Shake and display bookkeeping run on receipt time so client clock
	// skew cannot stretch or suppress the decay windows.
	Timestamp time.Time
}

// Mapper converts a stream of device-motion samples into a continuously
// available effective-gravity vector and a discrete shake signal.
//
// Ingest is the sole mutating entry point. All methods assume the
// single-threaded event/tick model: samples and tick reads interleave on
// one goroutine, so a read never observes a partially updated vector.
type Mapper struct {
	cfg Config
	ax  compiledAxisMap

	effective geom.Vec3
	display   geom.Vec3
	displayAt time.Time

	shaking    bool
	shakeUntil time.Time

	now func() time.Time
}

// NewMapper builds a mapper from the given calibration. The initial
// effective gravity is canonical down.
func NewMapper(cfg Config) (*Mapper, error) {
	ax, err := cfg.AxisMap.compile()
	if err != nil {
		return nil, err
	}
	down := geom.Vec3{Y: -StandardGravity}
	return &Mapper{
		cfg:       cfg,
		ax:        ax,
		effective: down,
		display:   down,
		now:       time.Now,
	}, nil
}

// Ingest processes one device-motion sample. Samples without an
// including-gravity reading are a no-op, not an error; intermittent nulls
// are expected from some sensors, and without that channel there is no
// tilt information to act on.
func (m *Mapper) Ingest(s Sample) {
	if s.AccelIncludingGravity == nil {
		return
	}

	ts := m.now()
	raw := *s.AccelIncludingGravity

	if raw.Length() > m.cfg.ShakeThreshold {
		m.shaking = true
		m.shakeUntil = ts.Add(m.cfg.ShakeDecay)
	} else if m.shaking && ts.After(m.shakeUntil) {
		m.shaking = false
	}

	// Tilt gravity: subtract out device movement when the sensor reports
	// it separately, otherwise take the raw reading as-is.
	tilt := raw
	if s.LinearAccel != nil {
		tilt = raw.Sub(*s.LinearAccel)
	}
	tilt = deadzone(tilt, m.cfg.TiltDeadzone)

	var eff geom.Vec3
	if tilt.Length() < m.cfg.SnapThreshold {
		// Device is resting flat enough; snap to canonical down rather
		// than feeding micro-jitter into the physics world.
		eff = geom.Vec3{Y: -StandardGravity}
	} else {
		eff = m.ax.apply(tilt).Scale(m.cfg.GravityScale)
	}

	if s.LinearAccel != nil {
		la := *s.LinearAccel
		if la.Length() > m.cfg.PseudoForceDeadzone {
			// Pseudo-force of the non-inertial device frame: the world,
			// seen from inside an accelerating device, is pushed the
			// opposite way.
			eff = eff.Add(m.ax.apply(la).Scale(m.cfg.GravityScale).Neg())
		}
	}

	m.effective = eff

	if ts.Sub(m.displayAt) >= m.cfg.DisplayInterval {
		m.display = eff
		m.displayAt = ts
	}
}

// RealtimeGravity returns the latest effective gravity. It is meant to be
// read at full tick frequency; no smoothing or throttling is applied.
func (m *Mapper) RealtimeGravity() geom.Vec3 { return m.effective }

// DisplayGravity returns the throttled snapshot for UI and debug paths.
func (m *Mapper) DisplayGravity() geom.Vec3 { return m.display }

// Shaking reports whether a shake is in progress. The flag decays after
// ShakeDecay without a refreshing sample.
func (m *Mapper) Shaking() bool {
	return m.shaking && !m.now().After(m.shakeUntil)
}

func deadzone(v geom.Vec3, min float64) geom.Vec3 {
	if math.Abs(v.X) < min {
		v.X = 0
	}
	if math.Abs(v.Y) < min {
		v.Y = 0
	}
	if math.Abs(v.Z) < min {
		v.Z = 0
	}
	return v
}
