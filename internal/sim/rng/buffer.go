package rng

import "math/rand/v2"

const DefaultCapacity = 100_000

// Source produces uniform samples in [0,1).
type Source interface {
	// Next returns the next buffered sample.
	Next() float64
	// GenerateNext is like Next but regenerates the sample first, for callers
	// that care more about freshness than reuse.
	GenerateNext() float64
}

// Buffer is a ring of precomputed samples. Next cycles through the ring, so
// the sequence repeats after Cap() calls unless GenerateNext refreshes slots.
// A Buffer is not safe for concurrent use; give each worker its own.
type Buffer struct {
	gen    *rand.Rand
	values []float64
	next   int
}

func NewBuffer(capacity int, seed uint64) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		gen:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		values: make([]float64, capacity),
	}
	for i := range b.values {
		b.values[i] = b.gen.Float64()
	}
	return b
}

// NewBuffers returns n independent buffers seeded seed, seed+1, ...
func NewBuffers(n, capacity int, seed uint64) []*Buffer {
	out := make([]*Buffer, n)
	for i := range out {
		out[i] = NewBuffer(capacity, seed+uint64(i))
	}
	return out
}

func (b *Buffer) Cap() int { return len(b.values) }

func (b *Buffer) Next() float64 {
	b.next = (b.next + 1) % len(b.values)
	return b.values[b.next]
}

func (b *Buffer) GenerateNext() float64 {
	b.next = (b.next + 1) % len(b.values)
	b.values[b.next] = b.gen.Float64()
	return b.values[b.next]
}

// Sequence replays a fixed list of samples. Tests use it to script policy
// decisions.
type Sequence struct {
	Values []float64
	pos    int
}

func (s *Sequence) Next() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	v := s.Values[s.pos%len(s.Values)]
	s.pos++
	return v
}

func (s *Sequence) GenerateNext() float64 { return s.Next() }
