package server

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// session is one connected client, transport-agnostic. The owning
// transport drains the send channel; slow clients drop frames rather than
// stalling the broadcast path.
type session struct {
	id        string
	transport string // "websocket" or "quic"
	send      chan []byte
	closeOnce sync.Once
}

func newSession(id, transport string, bufSize int) *session {
	return &session{
		id:        id,
		transport: transport,
		send:      make(chan []byte, bufSize),
	}
}

// enqueue hands a frame to the session writer without blocking.
func (s *session) enqueue(frame []byte) error {
	select {
	case s.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// sessionRegistry shards sessions by xxhash of the session ID so the
// broadcast fan-out never serializes on one lock.
type sessionRegistry struct {
	shards []*sessionShard
	count  int64 // atomic
	max    int
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry(shardCount, maxClients int) *sessionRegistry {
	if shardCount <= 0 {
		shardCount = 1
	}
	shards := make([]*sessionShard, shardCount)
	for i := range shards {
		shards[i] = &sessionShard{sessions: make(map[string]*session)}
	}
	return &sessionRegistry{shards: shards, max: maxClients}
}

func (r *sessionRegistry) shardFor(id string) *sessionShard {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

func (r *sessionRegistry) add(s *session) error {
	if r.max > 0 && int(atomic.LoadInt64(&r.count)) >= r.max {
		return ErrMaxClientsExceeded
	}
	shard := r.shardFor(s.id)
	shard.mu.Lock()
	shard.sessions[s.id] = s
	shard.mu.Unlock()
	atomic.AddInt64(&r.count, 1)
	return nil
}

func (r *sessionRegistry) remove(id string) {
	shard := r.shardFor(id)
	shard.mu.Lock()
	s, ok := shard.sessions[id]
	if ok {
		delete(shard.sessions, id)
	}
	shard.mu.Unlock()
	if ok {
		s.close()
		atomic.AddInt64(&r.count, -1)
	}
}

// broadcast enqueues a frame for every session and reports how many
// sessions dropped it.
func (r *sessionRegistry) broadcast(frame []byte) int {
	dropped := 0
	for _, shard := range r.shards {
		shard.mu.RLock()
		for _, s := range shard.sessions {
			if err := s.enqueue(frame); err != nil {
				dropped++
			}
		}
		shard.mu.RUnlock()
	}
	return dropped
}

func (r *sessionRegistry) send(id string, frame []byte) error {
	shard := r.shardFor(id)
	shard.mu.RLock()
	s, ok := shard.sessions[id]
	shard.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	return s.enqueue(frame)
}

func (r *sessionRegistry) len() int {
	return int(atomic.LoadInt64(&r.count))
}

// closeAll drops every session, closing their send channels.
func (r *sessionRegistry) closeAll() {
	for _, shard := range r.shards {
		shard.mu.Lock()
		for id, s := range shard.sessions {
			s.close()
			delete(shard.sessions, id)
		}
		shard.mu.Unlock()
	}
	atomic.StoreInt64(&r.count, 0)
}
