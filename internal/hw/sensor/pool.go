package sensor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSlotOverflow is returned when encoded frame data does not fit its slot.
var ErrSlotOverflow = errors.New("sensor: frame does not fit buffer slot")

// Buffer is one frame checked out of a Pool. Data aliases slot memory and
// is only valid until the buffer is returned.
type Buffer struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time
	Seq       uint64

	slot  int
	token uuid.UUID
}

// Token identifies this checkout. It changes every time the slot is reused.
func (b *Buffer) Token() uuid.UUID {
	return b.token
}

// Write appends p to Data without growing past the slot capacity, so
// encoders can stream straight into pool memory.
func (b *Buffer) Write(p []byte) (int, error) {
	free := cap(b.Data) - len(b.Data)
	if len(p) > free {
		return 0, ErrSlotOverflow
	}
	b.Data = append(b.Data, p...)
	return len(p), nil
}

var _ io.Writer = (*Buffer)(nil)

type slot struct {
	mem   []byte
	inUse bool
	token uuid.UUID
}

// Pool is a fixed set of frame buffer slots allocated once.
type Pool struct {
	mu     sync.Mutex
	slots  []slot
	seq    uint64
	closed bool
}

// NewPool allocates depth slots of slotSize bytes each.
func NewPool(depth, slotSize int) (*Pool, error) {
	if depth < 1 {
		return nil, fmt.Errorf("sensor: pool depth must be >= 1, got %d", depth)
	}
	if slotSize < 1 {
		return nil, fmt.Errorf("sensor: slot size must be >= 1, got %d", slotSize)
	}
	p := &Pool{slots: make([]slot, depth)}
	for i := range p.slots {
		p.slots[i].mem = make([]byte, slotSize)
	}
	return p, nil
}

// Get checks out a free slot. The returned buffer has an empty Data
// slice whose capacity is the slot size.
func (p *Pool) Get() (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrNotInitialized
	}
	for i := range p.slots {
		s := &p.slots[i]
		if s.inUse {
			continue
		}
		s.inUse = true
		s.token = uuid.New()
		p.seq++
		return &Buffer{
			Data:  s.mem[:0],
			Seq:   p.seq,
			slot:  i,
			token: s.token,
		}, nil
	}
	return nil, ErrNoFrame
}

// Put returns b to its slot. Buffers that are nil, already returned or
// not from this pool are ignored; Put reports whether a slot was freed.
func (p *Pool) Put(b *Buffer) bool {
	if b == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || b.slot < 0 || b.slot >= len(p.slots) {
		return false
	}
	s := &p.slots[b.slot]
	if !s.inUse || s.token != b.token {
		return false
	}
	s.inUse = false
	s.token = uuid.Nil
	b.Data = nil
	b.token = uuid.Nil
	return true
}

// Available returns the number of free slots.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}
	n := 0
	for _, s := range p.slots {
		if !s.inUse {
			n++
		}
	}
	return n
}

// Depth returns the number of slots.
func (p *Pool) Depth() int {
	return len(p.slots)
}

// Close releases slot memory. Outstanding buffers become stale.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for i := range p.slots {
		p.slots[i] = slot{}
	}
}
