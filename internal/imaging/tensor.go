package imaging

import (
	"fmt"
	"sync"
)

// Layout is the memory order of a tensor's pixel data.
type Layout string

const (
	// LayoutNHWC stores [batch, height, width, channel].
	LayoutNHWC Layout = "NHWC"
	// LayoutNCHW stores [batch, channel, height, width].
	LayoutNCHW Layout = "NCHW"
)

const (
	DefaultSize = 224
	Channels    = 3

	// DefaultMaxPixels bounds the decoded size of an uploaded image.
	DefaultMaxPixels = 40_000_000
)

var defaultPool = sync.Pool{
	New: func() any {
		buf := make([]float32, DefaultSize*DefaultSize*Channels)
		return &buf
	},
}

// Tensor is a batch-of-one image tensor with values in [0,1].
// Callers must Release it when done so the buffer can be reused.
type Tensor struct {
	Shape  []int64
	Layout Layout

	mu     sync.Mutex
	data   []float32
	buf    *[]float32
	closed bool
}

func newTensor(size int, layout Layout) *Tensor {
	n := size * size * Channels
	t := &Tensor{Shape: Shape(size, layout), Layout: layout}
	if size == DefaultSize {
		t.buf = defaultPool.Get().(*[]float32)
		t.data = (*t.buf)[:n]
	} else {
		t.data = make([]float32, n)
	}
	return t
}

// NewTensor wraps already-normalised values, e.g. from a raw tensor request.
func NewTensor(values []float32, size int, layout Layout) (*Tensor, error) {
	if layout == "" {
		layout = LayoutNHWC
	}
	if layout != LayoutNHWC && layout != LayoutNCHW {
		return nil, fmt.Errorf("%w: unknown layout %q", ErrInvalidTensor, layout)
	}
	want := size * size * Channels
	if len(values) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidTensor, want, len(values))
	}
	for i, v := range values {
		if !(v >= 0 && v <= 1) {
			return nil, fmt.Errorf("%w: value %d out of range [0,1]: %v", ErrInvalidTensor, i, v)
		}
	}
	t := newTensor(size, layout)
	copy(t.data, values)
	return t, nil
}

// Data returns the tensor's values, or nil after Release.
func (t *Tensor) Data() []float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// Len is the number of elements described by Shape.
func (t *Tensor) Len() int {
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// Release returns the buffer to the pool. Safe to call more than once.
func (t *Tensor) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.buf != nil {
		clear(*t.buf)
		defaultPool.Put(t.buf)
		t.buf = nil
	}
	t.data = nil
}

// Shape is the tensor shape of a batch of one size x size RGB image.
func Shape(size int, layout Layout) []int64 {
	s := int64(size)
	if layout == LayoutNCHW {
		return []int64{1, Channels, s, s}
	}
	return []int64{1, s, s, Channels}
}
