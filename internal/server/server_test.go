package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tumbledice/tumble/internal/config"
	"github.com/tumbledice/tumble/internal/core/dice"
	"github.com/tumbledice/tumble/internal/core/geom"
	"github.com/tumbledice/tumble/internal/core/observability/log"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MaxClients = 4
	s, err := NewServer(cfg, log.New(log.LevelError))
	require.NoError(t, err)
	return s
}

// newTestSession registers a session so replies can reach it.
func newTestSession(t *testing.T, s *Server) *session {
	t.Helper()
	sess := newSession("a", "websocket", 4)
	require.NoError(t, s.registry.add(sess))
	return sess
}

// drain decodes the next frame queued on the session.
func drain(t *testing.T, sess *session) OutboundFrame {
	t.Helper()
	select {
	case data := <-sess.send:
		var f OutboundFrame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	default:
		t.Fatal("no frame queued")
		return OutboundFrame{}
	}
}

func TestHandleInbound_AddDie(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t, s)

	s.handleInbound(sess, InboundFrame{Type: frameAddDie, Sides: 20})

	f := drain(t, sess)
	assert.Equal(t, frameAdded, f.Type)
	assert.NotEmpty(t, f.DieID)
	assert.Len(t, s.world.Snapshot(), 1)
}

func TestHandleInbound_AddDieInvalidSides(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t, s)

	s.handleInbound(sess, InboundFrame{Type: frameAddDie, Sides: 7})

	f := drain(t, sess)
	assert.Equal(t, frameError, f.Type)
	assert.NotEmpty(t, f.Error)
	assert.Empty(t, s.world.Snapshot())
}

func TestHandleInbound_ThrowUnknownDie(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t, s)

	s.handleInbound(sess, InboundFrame{Type: frameThrow, DieID: "ghost"})

	assert.Equal(t, frameError, drain(t, sess).Type)
}

func TestHandleInbound_GrabRelease(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t, s)

	id, err := s.world.AddDie(dice.D6)
	require.NoError(t, err)

	s.handleInbound(sess, InboundFrame{Type: frameGrab, DieID: id})
	require.True(t, s.world.Snapshot()[0].Held)

	s.handleInbound(sess, InboundFrame{
		Type:     frameRelease,
		DieID:    id,
		Velocity: &geom.Vec3{X: 2, Y: 5},
	})
	assert.False(t, s.world.Snapshot()[0].Held)

	// nothing was malformed, so no error frames were queued
	select {
	case data := <-sess.send:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func TestHandleInbound_MotionQueuesSample(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t, s)

	s.handleInbound(sess, InboundFrame{
		Type:        frameMotion,
		Accel:       &geom.Vec3{Z: -9.81},
		TimestampMS: time.Now().UnixMilli(),
	})

	select {
	case sample := <-s.samples:
		require.NotNil(t, sample.AccelIncludingGravity)
		assert.InDelta(t, -9.81, sample.AccelIncludingGravity.Z, 1e-9)
	default:
		t.Fatal("sample not funneled to the simulation")
	}
}

func TestStart_QUICListenFailureCleansUp(t *testing.T) {
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.QUICAddr = "not a listen address"
	s, err := NewServer(cfg, log.New(log.LevelError))
	require.NoError(t, err)

	require.Error(t, s.Start(context.Background()))

	// the error path tears everything down again, so the server is
	// restartable state-wise and Stop reports it as never started
	assert.Equal(t, int32(0), atomic.LoadInt32(&s.running))
	assert.ErrorIs(t, s.Stop(), ErrServerClosed)
}

func TestReply_UnregisteredSessionDropped(t *testing.T) {
	s := newTestServer(t)
	sess := newSession("ghost", "websocket", 4)

	s.reply(sess, OutboundFrame{Type: frameAdded, DieID: "d1"})

	select {
	case data := <-sess.send:
		t.Fatalf("unexpected frame: %s", data)
	default:
	}
}

func TestHandleHistory(t *testing.T) {
	s := newTestServer(t)
	s.history.Append("d1", dice.D6, 4, time.Now())
	s.history.Append("d2", dice.D20, 17, time.Now())

	rec := httptest.NewRecorder()
	s.handleHistory(rec, httptest.NewRequest(http.MethodGet, "/history?limit=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rolls  []json.RawMessage `json:"rolls"`
		Digest string            `json:"digest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Rolls, 1)
	assert.NotEmpty(t, body.Digest)
}

func TestHandleHistory_BadRequest(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleHistory(rec, httptest.NewRequest(http.MethodGet, "/history?limit=cat", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.handleHistory(rec, httptest.NewRequest(http.MethodPost, "/history", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStats(t *testing.T) {
	s := newTestServer(t)
	s.history.Append("d1", dice.D6, 3, time.Now())

	rec := httptest.NewRecorder()
	s.handleStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Shapes  []json.RawMessage `json:"shapes"`
		Clients int               `json:"clients"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Shapes, 1)
	assert.Equal(t, 0, body.Clients)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
