package dice

import (
	"time"

	"github.com/tumbledice/tumble/internal/core/geom"
)

// Phase is the settlement phase of a single die.
type Phase int

const (
	PhaseMoving Phase = iota
	PhaseSettling
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseMoving:
		return "moving"
	case PhaseSettling:
		return "settling"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// State is a snapshot of the settlement state machine. Elapsed is only
// meaningful while settling; Value only once settled.
type State struct {
	Phase   Phase
	Elapsed time.Duration
	Value   int
}

// Config holds the settlement thresholds.
type Config struct {
	// Below both thresholds a die is considered to be coming to rest.
	LinearThreshold  float64 `yaml:"linear_threshold"`  // units/s
	AngularThreshold float64 `yaml:"angular_threshold"` // rad/s

	// SettleAfter is how long a die must stay below both thresholds,
	// without interruption, before its face value is frozen.
	SettleAfter time.Duration `yaml:"settle_after"`
}

// DefaultConfig returns the stock settlement thresholds.
func DefaultConfig() Config {
	return Config{
		LinearThreshold:  0.01,
		AngularThreshold: 0.01,
		SettleAfter:      time.Second,
	}
}

// Resolver tracks the settlement state of one die and resolves its up face
// once motion has genuinely ceased. One Resolver exists per die instance;
// it is not safe for concurrent use and does not need to be, since both
// Update and Reset run on the simulation tick.
type Resolver struct {
	cfg   Config
	table Table
	state State
}

// NewResolver creates a resolver for the given shape.
func NewResolver(shape Shape, cfg Config) (*Resolver, error) {
	table, err := TableFor(shape)
	if err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg, table: table, state: State{Phase: PhaseMoving}}, nil
}

// Table exposes the face-normal table the resolver was built with.
func (r *Resolver) Table() Table { return r.table }

// State returns the current settlement snapshot without advancing it.
func (r *Resolver) State() State { return r.state }

// Update advances the state machine by one simulation tick. The velocities
// are world-space; dt accumulates the settling timer and plays no part in
// the threshold comparison itself. A die that never drops below the
// thresholds never settles; there is deliberately no timeout fallback.
func (r *Resolver) Update(linVel, angVel geom.Vec3, orientation geom.Quat, dt time.Duration) (State, error) {
	below := linVel.Length() < r.cfg.LinearThreshold && angVel.Length() < r.cfg.AngularThreshold

	switch r.state.Phase {
	case PhaseMoving:
		if below {
			r.state = State{Phase: PhaseSettling}
		}
	case PhaseSettling:
		if !below {
			r.state = State{Phase: PhaseMoving}
			break
		}
		r.state.Elapsed += dt
		if r.state.Elapsed >= r.cfg.SettleAfter {
			value, err := ResolveFace(orientation, r.table)
			if err != nil {
				return r.state, err
			}
			r.state = State{Phase: PhaseSettled, Value: value}
		}
	case PhaseSettled:
		if !below {
			r.state = State{Phase: PhaseMoving}
		}
	}
	return r.state, nil
}

// Reset forces the state machine back to moving and clears any pending
// settle timer. Called when the die is rethrown or grabbed.
func (r *Resolver) Reset() {
	r.state = State{Phase: PhaseMoving}
}

// faceEpsilon is the dot-product margin inside which two face normals are
// considered tied. Ties cannot occur for valid dice geometry; when they do
// the lowest face value wins so the result stays deterministic.
const faceEpsilon = 1e-9

// ResolveFace returns the face value whose normal, rotated by orientation,
// points closest to world up. Pure; no dependency on velocity.
func ResolveFace(orientation geom.Quat, table Table) (int, error) {
	if len(table.Normals) == 0 {
		return 0, ErrInvalidGeometry
	}

	best := table.Normals[0]
	bestDot := orientation.Rotate(best.Direction).Dot(geom.Up)
	for _, fn := range table.Normals[1:] {
		d := orientation.Rotate(fn.Direction).Dot(geom.Up)
		switch {
		case d > bestDot+faceEpsilon:
			best, bestDot = fn, d
		case d > bestDot-faceEpsilon && fn.Value < best.Value:
			best = fn
		}
	}
	return best.Value, nil
}
