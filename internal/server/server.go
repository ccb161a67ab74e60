package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tumbledice/tumble/internal/config"
	"github.com/tumbledice/tumble/internal/core/dice"
	"github.com/tumbledice/tumble/internal/core/events/bus"
	"github.com/tumbledice/tumble/internal/core/geom"
	"github.com/tumbledice/tumble/internal/core/history"
	"github.com/tumbledice/tumble/internal/core/motion"
	"github.com/tumbledice/tumble/internal/core/observability/log"
	"github.com/tumbledice/tumble/internal/core/sim"
)

// Server wires the simulation world, the motion mapper, the roll history
// and the client transports together.
type Server struct {
	cfg    config.Config
	logger log.Log

	world    *sim.World
	mapper   *motion.Mapper
	history  *history.Store
	eventBus bus.EventBus
	registry *sessionRegistry

	// samples funnels device-motion frames from all transports into the
	// simulation goroutine.
	samples chan motion.Sample

	httpServer *http.Server
	quic       *quicListener

	running int32 // atomic bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewServer builds an unstarted server from configuration.
func NewServer(cfg config.Config, logger log.Log) (*Server, error) {
	mapper, err := motion.NewMapper(cfg.Motion)
	if err != nil {
		return nil, err
	}

	eventBus := bus.New()
	s := &Server{
		cfg:      cfg,
		logger:   logger.With(log.String("component", "server")),
		world:    sim.NewWorld(cfg.World, eventBus, logger, 0),
		mapper:   mapper,
		history:  history.NewStore(cfg.History),
		eventBus: eventBus,
		registry: newSessionRegistry(cfg.Server.SessionShards, cfg.Server.MaxClients),
		samples:  make(chan motion.Sample, 128),
	}
	return s, nil
}

// World exposes the simulation for tests and tooling.
func (s *Server) World() *sim.World { return s.world }

// Start launches the simulation loop, the broadcast loop and all
// configured listeners. It returns once everything is running.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerClosed
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.group, ctx = errgroup.WithContext(ctx)

	if _, err := s.eventBus.Subscribe(bus.TypeRollSettled, s.onRollSettled); err != nil {
		s.cancel()
		atomic.StoreInt32(&s.running, 0)
		return err
	}

	s.group.Go(func() error {
		s.world.Run(ctx, s.mapper, s.samples)
		return nil
	})
	s.group.Go(func() error {
		s.broadcastLoop(ctx)
		return nil
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{Addr: s.cfg.Server.HTTPAddr, Handler: mux}
	s.group.Go(func() error {
		s.logger.Info("http listener started", log.String("addr", s.cfg.Server.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.cfg.Server.QUICAddr != "" {
		ql, err := newQUICListener(s.cfg.Server.QUICAddr, s, s.logger)
		if err != nil {
			// a failed Start must leave nothing running
			s.cancel()
			_ = s.httpServer.Close()
			_ = s.group.Wait()
			atomic.StoreInt32(&s.running, 0)
			return err
		}
		s.quic = ql
		s.group.Go(func() error {
			ql.acceptLoop(ctx)
			return nil
		})
	}

	return nil
}

// Stop shuts down listeners, drops every session and waits for the
// background loops to finish.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerClosed
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			firstErr = err
		}
	}
	if s.quic != nil {
		if err := s.quic.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.cancel()
	s.registry.closeAll()

	if err := s.group.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.logger.Info("server stopped")
	return firstErr
}

// handleInbound dispatches one decoded client frame. Malformed commands
// answer with an error frame on that session only; they are never fatal.
func (s *Server) handleInbound(sess *session, f InboundFrame) {
	switch f.Type {
	case frameMotion:
		// Device-motion arrives at sensor frequency; when the funnel is
		// full the sample is stale already, so drop it.
		select {
		case s.samples <- f.Sample():
		default:
		}

	case frameAddDie:
		shape, err := dice.ParseShape(f.Sides)
		if err != nil {
			s.replyError(sess, err)
			return
		}
		id, err := s.world.AddDie(shape)
		if err != nil {
			s.replyError(sess, err)
			return
		}
		s.reply(sess, OutboundFrame{Type: frameAdded, DieID: id})

	case frameThrow:
		if f.DieID == "" {
			s.world.ThrowAll()
			return
		}
		if err := s.world.Throw(f.DieID); err != nil {
			s.replyError(sess, err)
		}

	case frameGrab:
		if err := s.world.Grab(f.DieID); err != nil {
			s.replyError(sess, err)
		}

	case frameRelease:
		var v geom.Vec3
		if f.Velocity != nil {
			v = *f.Velocity
		}
		if err := s.world.Release(f.DieID, v); err != nil {
			s.replyError(sess, err)
		}
	}
}

func (s *Server) onRollSettled(e bus.Event) error {
	roll, ok := e.Data().(sim.SettledRoll)
	if !ok {
		return nil
	}
	rec := s.history.Append(roll.DieID, roll.Shape, roll.Value, roll.SettledAt)
	s.logger.Info("roll settled",
		log.String("die_id", roll.DieID),
		log.Int("sides", roll.Shape.Sides()),
		log.Int("value", roll.Value))

	frame, err := encodeOutbound(OutboundFrame{Type: frameSettled, Roll: &rec})
	if err != nil {
		return err
	}
	s.registry.broadcast(frame)
	return nil
}

// broadcastLoop streams world snapshots at the display rate. The settle
// transition itself is pushed immediately by onRollSettled; this loop only
// carries poses and gravity for rendering.
func (s *Server) broadcastLoop(ctx context.Context) {
	interval := s.cfg.Motion.DisplayInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.registry.len() == 0 {
				continue
			}
			gravity, shaking := s.world.Gravity()
			frame, err := encodeOutbound(OutboundFrame{
				Type:    frameState,
				Dice:    s.world.Snapshot(),
				Gravity: &gravity,
				Shaking: shaking,
			})
			if err != nil {
				s.logger.Error("state frame encode", log.Error(err))
				continue
			}
			if dropped := s.registry.broadcast(frame); dropped > 0 {
				s.logger.Debug("slow clients dropped state frame", log.Int("dropped", dropped))
			}
		}
	}
}

func (s *Server) reply(sess *session, f OutboundFrame) {
	frame, err := encodeOutbound(f)
	if err != nil {
		s.logger.Error("frame encode", log.Error(err))
		return
	}
	if err := s.registry.send(sess.id, frame); err != nil {
		s.logger.Debug("reply dropped", log.String("session", sess.id), log.Error(err))
	}
}

func (s *Server) replyError(sess *session, err error) {
	s.reply(sess, OutboundFrame{Type: frameError, Error: err.Error()})
}
