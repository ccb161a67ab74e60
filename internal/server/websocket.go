package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tumbledice/tumble/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser client is served from arbitrary dev origins; the service
	// carries no credentials, so the origin check stays permissive.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 5 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxFrameSize = 4 * 1024
)

// handleWebSocket upgrades a browser connection and runs its reader and
// writer until either side goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	sess := newSession(uuid.NewString(), "websocket", s.cfg.Server.SendBufferSize)
	if err := s.registry.add(sess); err != nil {
		s.logger.Warn("client rejected", log.Error(err))
		_ = conn.Close()
		return
	}

	logger := s.logger.With(
		log.String("session", sess.id),
		log.String("remote", conn.RemoteAddr().String()))
	logger.Info("client connected", log.Int("clients", s.registry.len()))

	go s.wsWriter(conn, sess, logger)
	s.wsReader(conn, sess, logger)

	s.registry.remove(sess.id)
	_ = conn.Close()
	logger.Info("client disconnected", log.Int("clients", s.registry.len()))
}

func (s *Server) wsReader(conn *websocket.Conn, sess *session, logger log.Log) {
	conn.SetReadLimit(wsMaxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read", log.Error(err))
			}
			return
		}
		frame, err := decodeInbound(data)
		if err != nil {
			logger.Debug("bad frame dropped", log.Error(err))
			continue
		}
		s.handleInbound(sess, frame)
	}
}

func (s *Server) wsWriter(conn *websocket.Conn, sess *session, logger log.Log) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case frame, ok := <-sess.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write", log.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
