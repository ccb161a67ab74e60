package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tumbledice/tumble/internal/core/geom"
	"github.com/tumbledice/tumble/internal/core/history"
	"github.com/tumbledice/tumble/internal/core/motion"
	"github.com/tumbledice/tumble/internal/core/sim"
	"github.com/tumbledice/tumble/pkg/generic"
)

// Inbound frame types (client -> server).
const (
	frameMotion  = "motion"
	frameAddDie  = "add_die"
	frameThrow   = "throw"
	frameGrab    = "grab"
	frameRelease = "release"
)

// Outbound frame types (server -> client).
const (
	frameState   = "state"
	frameSettled = "settled"
	frameAdded   = "added"
	frameError   = "error"
)

// InboundFrame is the envelope for every client message. Type selects
// which optional fields are meaningful.
type InboundFrame struct {
	Type string `json:"type"`

	// motion
	Accel        *geom.Vec3 `json:"accel,omitempty"`         // including gravity, device space
	LinearAccel  *geom.Vec3 `json:"linear_accel,omitempty"`  // gravity-free, when available
	RotationRate *geom.Vec3 `json:"rotation_rate,omitempty"` // gyro, when available
	TimestampMS  int64      `json:"timestamp_ms,omitempty"`

	// add_die / throw / grab / release
	Sides    int        `json:"sides,omitempty"`
	DieID    string     `json:"die_id,omitempty"` // empty die_id on throw means all dice
	Velocity *geom.Vec3 `json:"velocity,omitempty"`
}

// Sample converts a motion frame into a mapper sample.
func (f InboundFrame) Sample() motion.Sample {
	var ts time.Time
	if f.TimestampMS > 0 {
		ts = time.UnixMilli(f.TimestampMS)
	}
	return motion.Sample{
		AccelIncludingGravity: f.Accel,
		LinearAccel:           f.LinearAccel,
		RotationRate:          f.RotationRate,
		Timestamp:             ts,
	}
}

// OutboundFrame is the envelope for every server message.
type OutboundFrame struct {
	Type string `json:"type"`

	// state
	Dice    []sim.BodyState `json:"dice,omitempty"`
	Gravity *geom.Vec3      `json:"gravity,omitempty"`
	Shaking bool            `json:"shaking,omitempty"`

	// settled
	Roll *history.Record `json:"roll,omitempty"`

	// added
	DieID string `json:"die_id,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

func decodeInbound(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	switch f.Type {
	case frameMotion, frameAddDie, frameThrow, frameGrab, frameRelease:
		return f, nil
	}
	return f, fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, f.Type)
}

// encodeBuffers pools the scratch buffers used to serialize outbound
// frames; broadcasts run at tick-adjacent rates, so allocation churn here
// shows up fast.
var encodeBuffers = generic.NewBufferPool(1024)

func encodeOutbound(f OutboundFrame) ([]byte, error) {
	buf := encodeBuffers.Get()
	defer encodeBuffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(f); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return bytes.TrimRight(out, "\n"), nil
}
