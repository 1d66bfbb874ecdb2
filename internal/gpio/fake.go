package gpio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// FakeInput is a test double that returns scripted levels and edges.
type FakeInput struct {
	// Levels contains scripted values returned by Level().
	// Each call consumes the next value; once exhausted the last value repeats.
	Levels []bool

	// Edges contains scripted events returned by WaitEdge().
	Edges []EdgeEvent

	// OnExhausted, if set, is called once when the last scripted level or
	// edge has been consumed. Tests use it to cancel the loop.
	OnExhausted func()

	// ReadError, if set, will be returned by Level() and WaitEdge().
	ReadError error

	// Closed tracks if Close was called
	Closed bool

	levelIndex int
	edgeIndex  int
	exhausted  bool
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels []bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Level returns the next scripted level.
func (f *FakeInput) Level() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.Levels[f.levelIndex]
	if f.levelIndex < len(f.Levels)-1 {
		f.levelIndex++
	} else {
		f.exhaust()
	}
	return level, nil
}

// WaitEdge returns the next scripted edge matching want. Non-matching edges
// are skipped. Once exhausted it behaves like an idle line.
func (f *FakeInput) WaitEdge(ctx context.Context, want Edge, timeout time.Duration) (EdgeEvent, error) {
	if f.ReadError != nil {
		return EdgeEvent{}, f.ReadError
	}
	for f.edgeIndex < len(f.Edges) {
		ev := f.Edges[f.edgeIndex]
		f.edgeIndex++
		if want.Matches(ev.Rising) {
			return ev, nil
		}
	}

	f.exhaust()
	if err := ctx.Err(); err != nil {
		return EdgeEvent{}, err
	}
	return EdgeEvent{}, ErrTimeout
}

func (f *FakeInput) exhaust() {
	if f.exhausted {
		return
	}
	f.exhausted = true
	if f.OnExhausted != nil {
		f.OnExhausted()
	}
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the scripted levels and edges.
func (f *FakeInput) Reset() {
	f.levelIndex = 0
	f.edgeIndex = 0
	f.exhausted = false
	f.Closed = false
}

// FakeOutput records the values it was set to. It is safe for concurrent use.
type FakeOutput struct {
	mu     sync.Mutex
	values []bool
	on     bool
	closed bool

	// SetError, if set, will be returned by Set().
	SetError error
}

// NewFakeOutput creates a FakeOutput in the inactive state.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the value.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.values = append(f.values, on)
	f.on = on
	return nil
}

// Values returns a copy of all recorded values.
func (f *FakeOutput) Values() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.values...)
}

// On returns the current value.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Closed reports if Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close marks the output as closed and inactive.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.on = false
	return nil
}
