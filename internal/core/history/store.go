package history

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/tumbledice/tumble/internal/core/dice"
)

// Record is one completed roll.
type Record struct {
	ID        string    `json:"id"`
	DieID     string    `json:"die_id"`
	Sides     int       `json:"sides"`
	Value     int       `json:"value"`
	SettledAt time.Time `json:"settled_at"`
}

// Config bounds the in-memory log.
type Config struct {
	Capacity int `yaml:"capacity"`
}

// DefaultConfig keeps the last 256 rolls.
func DefaultConfig() Config {
	return Config{Capacity: 256}
}

// Store is a bounded in-memory roll log. Oldest records are evicted at
// capacity. A running xxhash digest over the appended stream serves as a
// cheap session-integrity checksum: two stores that saw the same rolls in
// the same order agree on it.
type Store struct {
	mu sync.RWMutex

	capacity int
	records  []Record
	totals   map[dice.Shape]int64 // sum of rolled values per shape
	counts   map[dice.Shape]int64
	digest   *xxhash.Digest
}

// NewStore creates an empty roll log.
func NewStore(cfg Config) *Store {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultConfig().Capacity
	}
	return &Store{
		capacity: capacity,
		totals:   make(map[dice.Shape]int64),
		counts:   make(map[dice.Shape]int64),
		digest:   xxhash.New(),
	}
}

// Append records a settled roll and returns the stored record with its
// assigned ID.
func (s *Store) Append(dieID string, shape dice.Shape, value int, settledAt time.Time) Record {
	rec := Record{
		ID:        uuid.NewString(),
		DieID:     dieID,
		Sides:     shape.Sides(),
		Value:     value,
		SettledAt: settledAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	if len(s.records) > s.capacity {
		s.records = s.records[len(s.records)-s.capacity:]
	}
	s.totals[shape] += int64(value)
	s.counts[shape]++

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(shape))
	binary.LittleEndian.PutUint64(buf[8:], uint64(value))
	_, _ = s.digest.Write(buf[:])

	return rec
}

// Recent returns up to n records, newest last, as copies.
func (s *Store) Recent(n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]Record, n)
	copy(out, s.records[len(s.records)-n:])
	return out
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Digest returns the running checksum over every roll ever appended,
// including evicted ones.
func (s *Store) Digest() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digest.Sum64()
}

// Stats summarizes per-shape roll counts and averages.
type Stats struct {
	Sides   int     `json:"sides"`
	Rolls   int64   `json:"rolls"`
	Average float64 `json:"average"`
}

// Stats returns per-shape summaries in ascending face count.
func (s *Store) Stats() []Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stats, 0, len(s.counts))
	for _, shape := range dice.Shapes {
		n := s.counts[shape]
		if n == 0 {
			continue
		}
		out = append(out, Stats{
			Sides:   shape.Sides(),
			Rolls:   n,
			Average: float64(s.totals[shape]) / float64(n),
		})
	}
	return out
}
