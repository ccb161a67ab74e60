package sim

import (
	"time"

	"github.com/tumbledice/tumble/internal/core/dice"
	"github.com/tumbledice/tumble/internal/core/geom"
)

// Body is one die inside the tray. Position is the die center; Orientation
// is relative to the shape's rest pose, which is what the face-normal
// tables are defined against.
type Body struct {
	ID    string
	Shape dice.Shape

	Position        geom.Vec3
	Orientation     geom.Quat
	Velocity        geom.Vec3
	AngularVelocity geom.Vec3 // rad/s

	resolver *dice.Resolver
	held     bool
	// lastPhase detects the settling edge so each roll publishes exactly
	// one settled event.
	lastPhase dice.Phase
}

// State returns the body's current settlement snapshot.
func (b *Body) State() dice.State { return b.resolver.State() }

// Held reports whether the die is currently grabbed by a client.
func (b *Body) Held() bool { return b.held }

// integrate advances the body by dt under gravity g inside the tray.
// Semi-implicit Euler with wall/floor restitution; dice do not collide
// with each other.
func (b *Body) integrate(g geom.Vec3, dt time.Duration, cfg Config) {
	s := dt.Seconds()

	b.Velocity = b.Velocity.Add(g.Scale(s))
	b.Velocity = b.Velocity.Scale(damping(cfg.LinearDamping, s))
	b.AngularVelocity = b.AngularVelocity.Scale(damping(cfg.AngularDamping, s))

	b.Position = b.Position.Add(b.Velocity.Scale(s))
	b.Orientation = b.Orientation.Integrate(b.AngularVelocity, dt)

	r := cfg.DieRadius

	if b.Position.Y < r {
		b.Position.Y = r
		if b.Velocity.Y < 0 {
			b.Velocity.Y = -b.Velocity.Y * cfg.Restitution
			// ground contact scrubs spin faster than air damping
			b.AngularVelocity = b.AngularVelocity.Scale(cfg.ContactSpinScrub)
		}
		// kill residual bounce so the settle thresholds can be reached
		if b.Velocity.Y < cfg.RestVelocityCutoff {
			b.Velocity.Y = 0
		}
	}

	if b.Position.X > cfg.TrayHalfX-r {
		b.Position.X = cfg.TrayHalfX - r
		b.Velocity.X = -b.Velocity.X * cfg.Restitution
	} else if b.Position.X < -(cfg.TrayHalfX - r) {
		b.Position.X = -(cfg.TrayHalfX - r)
		b.Velocity.X = -b.Velocity.X * cfg.Restitution
	}

	if b.Position.Z > cfg.TrayHalfZ-r {
		b.Position.Z = cfg.TrayHalfZ - r
		b.Velocity.Z = -b.Velocity.Z * cfg.Restitution
	} else if b.Position.Z < -(cfg.TrayHalfZ - r) {
		b.Position.Z = -(cfg.TrayHalfZ - r)
		b.Velocity.Z = -b.Velocity.Z * cfg.Restitution
	}
}

// damping converts a per-second damping factor into a per-step factor.
func damping(perSecond, dt float64) float64 {
	if perSecond >= 1 {
		return 1
	}
	// linear approximation is stable for the tick rates in use
	f := 1 - (1-perSecond)*dt
	if f < 0 {
		return 0
	}
	return f
}
