package sim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tumbledice/tumble/internal/core/dice"
	"github.com/tumbledice/tumble/internal/core/events/bus"
	"github.com/tumbledice/tumble/internal/core/geom"
	"github.com/tumbledice/tumble/internal/core/observability/log"
)

type rollCollector struct {
	mu    sync.Mutex
	rolls []SettledRoll
}

func (c *rollCollector) handle(e bus.Event) error {
	roll, ok := e.Data().(SettledRoll)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.rolls = append(c.rolls, roll)
	c.mu.Unlock()
	return nil
}

func (c *rollCollector) all() []SettledRoll {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SettledRoll, len(c.rolls))
	copy(out, c.rolls)
	return out
}

func newTestWorld(t *testing.T) (*World, *rollCollector) {
	t.Helper()
	eventBus := bus.New()
	collector := &rollCollector{}
	_, err := eventBus.Subscribe(bus.TypeRollSettled, collector.handle)
	require.NoError(t, err)
	return NewWorld(DefaultConfig(), eventBus, log.Provide(), 1), collector
}

func stepFor(w *World, d time.Duration) {
	dt := time.Second / time.Duration(DefaultConfig().TickRate)
	for elapsed := time.Duration(0); elapsed < d; elapsed += dt {
		w.Step(dt)
	}
}

func TestWorld_RestingDieSettlesDefaultUp(t *testing.T) {
	w, collector := newTestWorld(t)
	id, err := w.AddDie(dice.D6)
	require.NoError(t, err)

	// identity orientation, zero velocity: the settle duration alone
	// decides when the roll completes
	stepFor(w, 1500*time.Millisecond)

	rolls := collector.all()
	require.Len(t, rolls, 1)
	assert.Equal(t, id, rolls[0].DieID)
	assert.Equal(t, 6, rolls[0].Value)

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "settled", snap[0].Phase)
	assert.Equal(t, 6, snap[0].Value)
}

func TestWorld_ThrownDieEventuallySettles(t *testing.T) {
	w, collector := newTestWorld(t)
	_, err := w.AddDie(dice.D20)
	require.NoError(t, err)

	w.ThrowAll()
	require.Empty(t, collector.all(), "throw must not settle immediately")

	stepFor(w, 30*time.Second)

	rolls := collector.all()
	require.Len(t, rolls, 1, "exactly one settled event per roll")
	assert.GreaterOrEqual(t, rolls[0].Value, 1)
	assert.LessOrEqual(t, rolls[0].Value, 20)
}

func TestWorld_ThrowResetsSettledDie(t *testing.T) {
	w, collector := newTestWorld(t)
	id, err := w.AddDie(dice.D6)
	require.NoError(t, err)

	stepFor(w, 1500*time.Millisecond)
	require.Len(t, collector.all(), 1)

	require.NoError(t, w.Throw(id))
	snap := w.Snapshot()
	assert.Equal(t, "moving", snap[0].Phase)

	stepFor(w, 30*time.Second)
	assert.Len(t, collector.all(), 2, "second roll publishes a second event")
}

func TestWorld_GrabInvalidatesSettle(t *testing.T) {
	w, _ := newTestWorld(t)
	id, err := w.AddDie(dice.D8)
	require.NoError(t, err)

	// die is mid-settle when grabbed
	stepFor(w, 500*time.Millisecond)
	require.NoError(t, w.Grab(id))

	snap := w.Snapshot()
	assert.Equal(t, "moving", snap[0].Phase)
	assert.True(t, snap[0].Held)

	// a held die does not simulate and never settles
	stepFor(w, 2*time.Second)
	assert.Equal(t, "moving", w.Snapshot()[0].Phase)
}

func TestWorld_ReleaseStartsNewRoll(t *testing.T) {
	w, collector := newTestWorld(t)
	id, err := w.AddDie(dice.D6)
	require.NoError(t, err)

	require.NoError(t, w.Grab(id))
	require.NoError(t, w.Release(id, geom.Vec3{X: 3, Y: 2}))

	stepFor(w, 30*time.Second)
	require.Len(t, collector.all(), 1)
}

func TestWorld_AddRemoveLimits(t *testing.T) {
	w, _ := newTestWorld(t)

	ids := make([]string, 0, DefaultConfig().MaxDice)
	for i := 0; i < DefaultConfig().MaxDice; i++ {
		id, err := w.AddDie(dice.D6)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := w.AddDie(dice.D6)
	assert.ErrorIs(t, err, ErrMaxDice)

	require.NoError(t, w.RemoveDie(ids[0]))
	assert.ErrorIs(t, w.RemoveDie(ids[0]), ErrDieNotFound)

	_, err = w.AddDie(dice.D12)
	assert.NoError(t, err)
}

func TestWorld_UnknownDieErrors(t *testing.T) {
	w, _ := newTestWorld(t)
	assert.ErrorIs(t, w.Throw("nope"), ErrDieNotFound)
	assert.ErrorIs(t, w.Grab("nope"), ErrDieNotFound)
	assert.ErrorIs(t, w.Release("nope", geom.Vec3{}), ErrDieNotFound)
}

func TestWorld_ShakeNudgesAndPublishesOnce(t *testing.T) {
	eventBus := bus.New()
	shakes := 0
	_, err := eventBus.Subscribe(bus.TypeShake, func(e bus.Event) error {
		shakes++
		return nil
	})
	require.NoError(t, err)

	w := NewWorld(DefaultConfig(), eventBus, log.Provide(), 1)
	_, err = w.AddDie(dice.D6)
	require.NoError(t, err)

	w.handleShake(true)
	w.handleShake(true) // still shaking: no second event
	w.handleShake(false)
	w.handleShake(true) // new shake

	assert.Equal(t, 2, shakes)

	g, shaking := w.Gravity()
	assert.True(t, shaking)
	assert.InDelta(t, -9.81, g.Y, 1e-9)
}

func TestWorld_StaysInsideTray(t *testing.T) {
	w, _ := newTestWorld(t)
	_, err := w.AddDie(dice.D6)
	require.NoError(t, err)

	cfg := DefaultConfig()
	for i := 0; i < 5; i++ {
		w.ThrowAll()
		stepFor(w, 2*time.Second)
		for _, b := range w.Snapshot() {
			assert.LessOrEqual(t, b.Position.X, cfg.TrayHalfX)
			assert.GreaterOrEqual(t, b.Position.X, -cfg.TrayHalfX)
			assert.LessOrEqual(t, b.Position.Z, cfg.TrayHalfZ)
			assert.GreaterOrEqual(t, b.Position.Z, -cfg.TrayHalfZ)
			assert.GreaterOrEqual(t, b.Position.Y, 0.0)
		}
	}
}
