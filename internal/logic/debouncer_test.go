package logic

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestNewDebouncer(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)
	if d == nil {
		t.Fatal("NewDebouncer returned nil")
	}
	if d.MinDwell() != 5*time.Millisecond {
		t.Errorf("expected min dwell 5ms, got %v", d.MinDwell())
	}
	if d.State() {
		t.Error("new debouncer should start in the low state")
	}
	if !d.LastTransition().Equal(t0) {
		t.Errorf("expected last transition %v, got %v", t0, d.LastTransition())
	}
	if d.Counts() != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", d.Counts())
	}
}

func TestSameStateNeverEmits(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	for i := 0; i < 100; i++ {
		if ev := d.Accept(false, at(i)); ev != nil {
			t.Fatalf("sample %d: unexpected event %+v", i, ev)
		}
		if d.State() {
			t.Fatalf("sample %d: state changed without a flip", i)
		}
	}
	if d.Counts() != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", d.Counts())
	}
}

func TestFlipsWithinDwellAreIgnored(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	// Alternating noise at 1ms never settles for 5ms
	flips := 0
	for i := 0; i < 50; i++ {
		raw := i%2 == 1
		if raw != d.State() {
			flips++
		}
		if ev := d.Accept(raw, at(i)); ev != nil {
			t.Fatalf("sample %d: unexpected event %+v", i, ev)
		}
	}

	if got := d.Counts().Ignored; got != flips {
		t.Errorf("expected %d ignored events, got %d", flips, got)
	}
	if d.Counts().Accepted() != 0 {
		t.Errorf("expected no accepted transitions, got %d", d.Counts().Accepted())
	}
}

func TestFlipsBeyondDwellAreAccepted(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	want := []Direction{Rising, Falling, Rising, Falling, Rising}
	for i, dir := range want {
		raw := dir == Rising
		now := at((i + 1) * 10)
		ev := d.Accept(raw, now)
		if ev == nil {
			t.Fatalf("flip %d: expected event", i)
		}
		if ev.Direction != dir {
			t.Errorf("flip %d: expected %s, got %s", i, dir, ev.Direction)
		}
		if !ev.Timestamp.Equal(now) {
			t.Errorf("flip %d: unexpected timestamp %v", i, ev.Timestamp)
		}
		if d.State() != raw {
			t.Errorf("flip %d: state not updated", i)
		}
	}

	c := d.Counts()
	if c.Rising != 3 || c.Falling != 2 || c.Ignored != 0 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestDwellExactlyMinIsAccepted(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	if ev := d.Accept(true, at(5)); ev == nil {
		t.Fatal("expected a transition exactly at the dwell boundary")
	}
	if ev := d.Accept(false, at(10)); ev == nil {
		t.Fatal("expected a transition 5ms after the previous one")
	}
}

func TestBounceRestartsDwell(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	if ev := d.Accept(true, at(10)); ev == nil {
		t.Fatal("expected rising transition")
	}
	// Contact chatter right after the edge
	if ev := d.Accept(false, at(12)); ev != nil {
		t.Fatalf("expected rejection 2ms after transition, got %+v", ev)
	}
	if ev := d.Accept(false, at(16)); ev != nil {
		t.Fatalf("expected rejection 4ms after the bounce, got %+v", ev)
	}
	ev := d.Accept(false, at(17))
	if ev == nil {
		t.Fatal("expected held level to be accepted 5ms after the bounce")
	}
	if ev.Direction != Falling || !ev.Timestamp.Equal(at(17)) {
		t.Errorf("unexpected event %+v", ev)
	}
	if got := d.Counts().Ignored; got != 2 {
		t.Errorf("expected 2 ignored events, got %d", got)
	}
}

func TestDenselyPolledCleanFlip(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	// Busy polling: 100 samples 0.1ms apart, then a clean flip
	for i := 0; i < 100; i++ {
		if ev := d.Accept(false, t0.Add(time.Duration(i)*100*time.Microsecond)); ev != nil {
			t.Fatalf("sample %d: unexpected event %+v", i, ev)
		}
	}
	ev := d.Accept(true, at(10))
	if ev == nil {
		t.Fatal("expected the flip to be accepted at once")
	}
	if ev.Direction != Rising || !ev.Timestamp.Equal(at(10)) {
		t.Errorf("unexpected event %+v", ev)
	}
	if got := d.Counts().Ignored; got != 0 {
		t.Errorf("expected no ignored events, got %d", got)
	}
}

func TestShortPulsesAreCounted(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	// 50Hz with 10% duty (2ms ON, 18ms OFF) polled every 0.1ms for 1s.
	// Each falling edge is taken 5ms after it first showed. The pulse at
	// 0ms falls within the dwell of the start time.
	for i := 0; i < 10000; i++ {
		d.Accept(i%200 < 20, t0.Add(time.Duration(i)*100*time.Microsecond))
	}

	c := d.Counts()
	if c.Rising != 49 || c.Falling != 49 {
		t.Errorf("expected 49 rising and 49 falling transitions, got %+v", c)
	}
	if c.Ignored != 20+49*50 {
		t.Errorf("expected %d ignored events, got %d", 20+49*50, c.Ignored)
	}
}

func TestAcceptedTransitionsRespectDwell(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	// A noisy square wave sampled every 0.5ms
	var last *TransitionEvent
	for i := 0; i < 400; i++ {
		now := t0.Add(time.Duration(i) * 500 * time.Microsecond)
		raw := (i/20)%2 == 1 || i%23 == 3
		ev := d.Accept(raw, now)
		if ev == nil {
			continue
		}
		if last != nil && ev.Timestamp.Sub(last.Timestamp) < 5*time.Millisecond {
			t.Fatalf("transitions %v and %v closer than dwell", last.Timestamp, ev.Timestamp)
		}
		last = ev
	}
	if last == nil {
		t.Fatal("expected at least one transition")
	}
}

// Feeds [F,F,F,T,T,T] at the given spacing.
func feedStep(d *Debouncer, spacing time.Duration) []TransitionEvent {
	raws := []bool{false, false, false, true, true, true}
	var events []TransitionEvent
	for i, raw := range raws {
		if ev := d.Accept(raw, t0.Add(time.Duration(i)*spacing)); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

func TestStepAtOneMillisecond(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	events := feedStep(d, time.Millisecond)
	if len(events) != 0 {
		t.Errorf("expected no transitions, got %d", len(events))
	}
	if got := d.Counts().Ignored; got != 3 {
		t.Errorf("expected 3 ignored events, got %d", got)
	}
}

func TestStepAtTenMilliseconds(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, t0)

	events := feedStep(d, 10*time.Millisecond)
	if len(events) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(events))
	}
	if events[0].Direction != Rising {
		t.Errorf("expected rising transition, got %s", events[0].Direction)
	}
	if !events[0].Timestamp.Equal(at(30)) {
		t.Errorf("expected transition at 30ms, got %v", events[0].Timestamp.Sub(t0))
	}
}

func TestNormalizeAndThreshold(t *testing.T) {
	tests := []struct {
		raw  int
		max  int
		want float64
		on   bool
	}{
		{0, 255, 0, false},
		{255, 255, VRef, true},
		{128, 255, 128.0 / 255 * VRef, true},
		{127, 255, 127.0 / 255 * VRef, false},
		{300, 255, VRef, true},
		{-1, 255, 0, false},
		{10, 0, 0, false},
	}

	for _, tt := range tests {
		got := Normalize(tt.raw, tt.max)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Normalize(%d, %d) = %f, want %f", tt.raw, tt.max, got, tt.want)
		}
		if on := Threshold(got, DefaultThreshold); on != tt.on {
			t.Errorf("Threshold(%f) = %v, want %v", got, on, tt.on)
		}
	}
}

func TestBoolToState(t *testing.T) {
	if BoolToState(true) != StateOn {
		t.Error("BoolToState(true) should be ON")
	}
	if BoolToState(false) != StateOff {
		t.Error("BoolToState(false) should be OFF")
	}
}
