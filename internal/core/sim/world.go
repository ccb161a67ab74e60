package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tumbledice/tumble/internal/core/dice"
	"github.com/tumbledice/tumble/internal/core/events/bus"
	"github.com/tumbledice/tumble/internal/core/geom"
	"github.com/tumbledice/tumble/internal/core/motion"
	"github.com/tumbledice/tumble/internal/core/observability/log"
)

var (
	ErrDieNotFound = errors.New("die not found")
	ErrMaxDice     = errors.New("maximum dice reached")
)

// Config holds the tray and throw parameters.
type Config struct {
	TickRate int `yaml:"tick_rate"` // simulation ticks per second

	MaxDice   int     `yaml:"max_dice"`
	DieRadius float64 `yaml:"die_radius"`

	TrayHalfX float64 `yaml:"tray_half_x"`
	TrayHalfZ float64 `yaml:"tray_half_z"`

	Restitution        float64 `yaml:"restitution"`
	LinearDamping      float64 `yaml:"linear_damping"`  // per second
	AngularDamping     float64 `yaml:"angular_damping"` // per second
	ContactSpinScrub   float64 `yaml:"contact_spin_scrub"`
	RestVelocityCutoff float64 `yaml:"rest_velocity_cutoff"`

	ThrowSpeedMin float64 `yaml:"throw_speed_min"`
	ThrowSpeedMax float64 `yaml:"throw_speed_max"`
	ThrowSpinMax  float64 `yaml:"throw_spin_max"` // rad/s
	ShakeNudge    float64 `yaml:"shake_nudge"`    // upward speed on shake

	Settle dice.Config `yaml:"settle"`
}

// DefaultConfig returns the stock tray.
func DefaultConfig() Config {
	return Config{
		TickRate:           60,
		MaxDice:            12,
		DieRadius:          0.5,
		TrayHalfX:          6,
		TrayHalfZ:          4,
		Restitution:        0.45,
		LinearDamping:      0.35,
		AngularDamping:     0.30,
		ContactSpinScrub:   0.85,
		RestVelocityCutoff: 0.6,
		ThrowSpeedMin:      4,
		ThrowSpeedMax:      9,
		ThrowSpinMax:       12,
		ShakeNudge:         3.5,
		Settle:             dice.DefaultConfig(),
	}
}

// BodyState is an immutable snapshot of one die for transport frames.
type BodyState struct {
	ID          string    `json:"id"`
	Sides       int       `json:"sides"`
	Position    geom.Vec3 `json:"position"`
	Orientation geom.Quat `json:"orientation"`
	Phase       string    `json:"phase"`
	Value       int       `json:"value,omitempty"`
	Held        bool      `json:"held,omitempty"`
}

// SettledRoll is the payload of a roll.settled event.
type SettledRoll struct {
	DieID     string
	Shape     dice.Shape
	Value     int
	SettledAt time.Time
}

// World owns the dice bodies and drives the per-tick pipeline: integrate,
// resolve, publish. Commands arrive from transport goroutines, so all
// public methods lock; the tick itself is single-threaded.
type World struct {
	mu sync.Mutex

	cfg     Config
	bus     bus.EventBus
	logger  log.Log
	rng     *rand.Rand
	gravity geom.Vec3
	bodies  []*Body

	wasShaking bool
}

// NewWorld creates an empty tray. seed fixes the throw RNG, which keeps
// simulations reproducible; pass 0 to seed from the clock.
func NewWorld(cfg Config, eventBus bus.EventBus, logger log.Log, seed int64) *World {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &World{
		cfg:     cfg,
		bus:     eventBus,
		logger:  logger.With(log.String("component", "world")),
		rng:     rand.New(rand.NewSource(seed)),
		gravity: geom.Vec3{Y: -motion.StandardGravity},
	}
}

// AddDie places a new die of the given shape at rest in the tray center
// and returns its ID.
func (w *World) AddDie(shape dice.Shape) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.bodies) >= w.cfg.MaxDice {
		return "", ErrMaxDice
	}
	resolver, err := dice.NewResolver(shape, w.cfg.Settle)
	if err != nil {
		return "", err
	}
	b := &Body{
		ID:          uuid.NewString(),
		Shape:       shape,
		Position:    w.scatterPosition(),
		Orientation: geom.QuatIdentity(),
		resolver:    resolver,
	}
	w.bodies = append(w.bodies, b)
	w.logger.Info("die added", log.String("die_id", b.ID), log.Int("sides", shape.Sides()))
	return b.ID, nil
}

// RemoveDie discards a die and its settlement state.
func (w *World) RemoveDie(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, b := range w.bodies {
		if b.ID == id {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			return nil
		}
	}
	return ErrDieNotFound
}

// Throw gives one die a randomized impulse and resets its settlement.
func (w *World) Throw(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.find(id)
	if b == nil {
		return ErrDieNotFound
	}
	w.throwLocked(b)
	return nil
}

// ThrowAll rethrows every die in the tray.
func (w *World) ThrowAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range w.bodies {
		w.throwLocked(b)
	}
}

// Grab marks a die as held: it stops simulating and its settlement resets,
// invalidating any in-progress settle.
func (w *World) Grab(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.find(id)
	if b == nil {
		return ErrDieNotFound
	}
	b.held = true
	b.Velocity = geom.Vec3{}
	b.AngularVelocity = geom.Vec3{}
	b.resolver.Reset()
	b.lastPhase = dice.PhaseMoving
	return nil
}

// Release drops a held die with the velocity imparted by the drag,
// starting a new roll.
func (w *World) Release(id string, velocity geom.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.find(id)
	if b == nil {
		return ErrDieNotFound
	}
	b.held = false
	b.Velocity = velocity
	b.AngularVelocity = w.randomSpin()
	b.resolver.Reset()
	b.lastPhase = dice.PhaseMoving
	return nil
}

// SetGravity replaces the world gravity; fed from the motion mapper's
// realtime path every tick.
func (w *World) SetGravity(g geom.Vec3) {
	w.mu.Lock()
	w.gravity = g
	w.mu.Unlock()
}

// Snapshot returns per-die state copies for a transport frame.
func (w *World) Snapshot() []BodyState {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]BodyState, 0, len(w.bodies))
	for _, b := range w.bodies {
		st := b.resolver.State()
		out = append(out, BodyState{
			ID:          b.ID,
			Sides:       b.Shape.Sides(),
			Position:    b.Position,
			Orientation: b.Orientation,
			Phase:       st.Phase.String(),
			Value:       st.Value,
			Held:        b.held,
		})
	}
	return out
}

// Step advances the simulation by dt: integrate each free body, advance
// its settlement machine, and publish a settled event on the edge into
// PhaseSettled.
func (w *World) Step(dt time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range w.bodies {
		if b.held {
			continue
		}
		b.integrate(w.gravity, dt, w.cfg)

		st, err := b.resolver.Update(b.Velocity, b.AngularVelocity, b.Orientation, dt)
		if err != nil {
			// only reachable with a broken face table; configuration bug
			w.logger.Error("face resolution failed", log.String("die_id", b.ID), log.Error(err))
			continue
		}
		if st.Phase == dice.PhaseSettled && b.lastPhase != dice.PhaseSettled {
			roll := SettledRoll{DieID: b.ID, Shape: b.Shape, Value: st.Value, SettledAt: time.Now()}
			if err := w.bus.Publish(bus.NewEvent(bus.TypeRollSettled, "world", roll)); err != nil {
				w.logger.Warn("settled event delivery", log.Error(err))
			}
		}
		b.lastPhase = st.Phase
	}
}

// Run drives fixed-rate ticks until the context is cancelled. Device
// samples are drained on the same goroutine as the ticks, so the mapper is
// never touched concurrently; this mirrors the single-threaded event/tick
// model the motion pipeline assumes.
func (w *World) Run(ctx context.Context, mapper *motion.Mapper, samples <-chan motion.Sample) {
	dt := time.Second / time.Duration(w.cfg.TickRate)
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	w.logger.Info("simulation started", log.Int("tick_rate", w.cfg.TickRate))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("simulation stopped")
			return
		case s := <-samples:
			if mapper != nil {
				mapper.Ingest(s)
			}
		case <-ticker.C:
			if mapper != nil {
				w.SetGravity(mapper.RealtimeGravity())
				w.handleShake(mapper.Shaking())
			}
			w.Step(dt)
		}
	}
}

// Gravity returns the gravity applied on the last tick together with the
// shake flag; this is the throttle-friendly snapshot transports read.
func (w *World) Gravity() (geom.Vec3, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gravity, w.wasShaking
}

// handleShake injects a scripted upward nudge on the idle-to-shaking edge.
func (w *World) handleShake(shaking bool) {
	w.mu.Lock()
	rising := shaking && !w.wasShaking
	w.wasShaking = shaking
	if rising {
		for _, b := range w.bodies {
			if b.held {
				continue
			}
			b.Velocity = b.Velocity.Add(geom.Vec3{Y: w.cfg.ShakeNudge})
			b.AngularVelocity = b.AngularVelocity.Add(w.randomSpin())
			b.resolver.Reset()
			b.lastPhase = dice.PhaseMoving
		}
	}
	w.mu.Unlock()

	if rising {
		if err := w.bus.Publish(bus.NewEvent(bus.TypeShake, "world", nil)); err != nil {
			w.logger.Warn("shake event delivery", log.Error(err))
		}
	}
}

func (w *World) find(id string) *Body {
	for _, b := range w.bodies {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (w *World) throwLocked(b *Body) {
	speed := w.cfg.ThrowSpeedMin + w.rng.Float64()*(w.cfg.ThrowSpeedMax-w.cfg.ThrowSpeedMin)
	dir := geom.Vec3{
		X: w.rng.Float64()*2 - 1,
		Y: 0.8 + w.rng.Float64()*0.6,
		Z: w.rng.Float64()*2 - 1,
	}.Normalize()

	b.held = false
	b.Velocity = dir.Scale(speed)
	b.AngularVelocity = w.randomSpin()
	b.resolver.Reset()
	b.lastPhase = dice.PhaseMoving
}

func (w *World) randomSpin() geom.Vec3 {
	max := w.cfg.ThrowSpinMax
	return geom.Vec3{
		X: (w.rng.Float64()*2 - 1) * max,
		Y: (w.rng.Float64()*2 - 1) * max,
		Z: (w.rng.Float64()*2 - 1) * max,
	}
}

func (w *World) scatterPosition() geom.Vec3 {
	return geom.Vec3{
		X: (w.rng.Float64()*2 - 1) * (w.cfg.TrayHalfX - 2*w.cfg.DieRadius),
		Y: w.cfg.DieRadius,
		Z: (w.rng.Float64()*2 - 1) * (w.cfg.TrayHalfZ - 2*w.cfg.DieRadius),
	}
}
