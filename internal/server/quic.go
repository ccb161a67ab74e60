package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/tumbledice/tumble/internal/core/observability/log"
)

const quicALPN = "tumble-quic"

// quicListener accepts native clients speaking newline-delimited JSON
// frames over one bidirectional stream per connection. The frame protocol
// is identical to the websocket one.
type quicListener struct {
	listener *quic.Listener
	server   *Server
	logger   log.Log
	closed   int32 // atomic bool
}

func newQUICListener(addr string, s *Server, logger log.Log) (*quicListener, error) {
	listener, err := quic.ListenAddr(addr, generateTLSConfig(), &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	l := &quicListener{
		listener: listener,
		server:   s,
		logger:   logger.With(log.String("transport", "quic")),
	}
	l.logger.Info("quic listener started", log.String("addr", addr))
	return l, nil
}

func (l *quicListener) close() error {
	atomic.StoreInt32(&l.closed, 1)
	return l.listener.Close()
}

func (l *quicListener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if atomic.LoadInt32(&l.closed) == 0 && ctx.Err() == nil {
				l.logger.Error("quic accept", log.Error(err))
			}
			return
		}
		go l.handleConn(ctx, conn)
	}
}

func (l *quicListener) handleConn(ctx context.Context, conn *quic.Conn) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		l.logger.Debug("quic stream accept", log.Error(err))
		_ = conn.CloseWithError(0, "no stream")
		return
	}

	sess := newSession(uuid.NewString(), "quic", l.server.cfg.Server.SendBufferSize)
	if err := l.server.registry.add(sess); err != nil {
		l.logger.Warn("client rejected", log.Error(err))
		_ = conn.CloseWithError(1, err.Error())
		return
	}

	logger := l.logger.With(
		log.String("session", sess.id),
		log.String("remote", conn.RemoteAddr().String()))
	logger.Info("client connected", log.Int("clients", l.server.registry.len()))

	go l.writer(stream, sess, logger)
	l.reader(stream, sess, logger)

	l.server.registry.remove(sess.id)
	_ = conn.CloseWithError(0, "bye")
	logger.Info("client disconnected", log.Int("clients", l.server.registry.len()))
}

func (l *quicListener) reader(stream *quic.Stream, sess *session, logger log.Log) {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 1024), wsMaxFrameSize)
	for scanner.Scan() {
		frame, err := decodeInbound(scanner.Bytes())
		if err != nil {
			logger.Debug("bad frame dropped", log.Error(err))
			continue
		}
		l.server.handleInbound(sess, frame)
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("quic read", log.Error(err))
	}
}

func (l *quicListener) writer(stream *quic.Stream, sess *session, logger log.Log) {
	for frame := range sess.send {
		if _, err := stream.Write(append(frame, '\n')); err != nil {
			logger.Debug("quic write", log.Error(err))
			return
		}
	}
}

// generateTLSConfig builds a self-signed certificate for development; a
// fronting proxy is expected to terminate real TLS in production.
func generateTLSConfig() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"tumble"},
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		panic(err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{quicALPN},
		MinVersion:   tls.VersionTLS13,
	}
}
