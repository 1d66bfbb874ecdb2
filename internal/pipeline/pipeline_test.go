package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/jfellner/revcounter/internal/adc"
	"github.com/jfellner/revcounter/internal/gpio"
	"github.com/jfellner/revcounter/internal/logic"
	"github.com/jfellner/revcounter/internal/mqtt"
	"github.com/jfellner/revcounter/internal/sampler"
	"github.com/jfellner/revcounter/internal/status"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newMock() *clock.Mock {
	m := clock.NewMock()
	m.Set(t0)
	return m
}

// tickingDevice advances the clock before every read.
type tickingDevice struct {
	*adc.FakeDevice
	clk  *clock.Mock
	step time.Duration
}

func (d *tickingDevice) Read(channel int) (int, error) {
	d.clk.Add(d.step)
	return d.FakeDevice.Read(channel)
}

// tickingInput advances the clock before every level read.
type tickingInput struct {
	*gpio.FakeInput
	clk  *clock.Mock
	step time.Duration
}

func (in *tickingInput) Level() (bool, error) {
	in.clk.Add(in.step)
	return in.FakeInput.Level()
}

type harness struct {
	p   *Pipeline
	led *gpio.FakeOutput
	pub *mqtt.FakePublisher
	out *bytes.Buffer
	ctx context.Context
}

func newHarness(t *testing.T, cfg Config, clk clock.Clock, s sampler.Sampler) (*harness, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		led: gpio.NewFakeOutput(),
		pub: mqtt.NewFakePublisher(),
		out: &bytes.Buffer{},
		ctx: ctx,
	}
	p, err := New(cfg, Deps{
		Sampler:   s,
		Sink:      NewLEDSink(h.led, zerolog.Nop()),
		Publisher: h.pub,
		Clock:     clk,
		Log:       zerolog.Nop(),
		Out:       h.out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.p = p
	return h, cancel
}

// analogHarness feeds raw ADC values spaced step apart.
func analogHarness(t *testing.T, cfg Config, step time.Duration, raw []int) (*harness, *adc.FakeDevice) {
	t.Helper()
	clk := newMock()
	dev := adc.NewFakeDevice(raw)
	s := sampler.NewAnalog(&tickingDevice{FakeDevice: dev, clk: clk, step: step}, 0, logic.DefaultThreshold, clk)
	h, cancel := newHarness(t, cfg, clk, s)
	dev.OnExhausted = cancel
	t.Cleanup(cancel)
	return h, dev
}

func lines(b *bytes.Buffer) []string {
	s := strings.TrimSpace(b.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestDebounceFastSamplesAreIgnored(t *testing.T) {
	h, _ := analogHarness(t, DefaultConfig(), time.Millisecond, []int{0, 0, 0, 255, 255, 255})

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := h.p.Counts()
	if c.Accepted() != 0 {
		t.Errorf("expected no accepted transitions, got %d", c.Accepted())
	}
	if c.Ignored != 3 {
		t.Errorf("expected 3 ignored changes, got %d", c.Ignored)
	}
	if len(h.led.Values()) != 0 || len(h.pub.Events) != 0 {
		t.Errorf("ignored changes must not reach sink or publisher: %v %v", h.led.Values(), h.pub.Events)
	}
	if got := lines(h.out); len(got) != 0 {
		t.Errorf("expected no report lines, got %q", got)
	}
}

func TestDebounceSlowSamplesAcceptOneRising(t *testing.T) {
	h, _ := analogHarness(t, DefaultConfig(), 10*time.Millisecond, []int{0, 0, 0, 255, 255, 255})

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := h.p.Counts()
	if c.Rising != 1 || c.Falling != 0 || c.Ignored != 0 {
		t.Errorf("expected exactly one rising transition, got %+v", c)
	}
	if len(h.pub.Events) != 1 || h.pub.Events[0].Direction != logic.Rising {
		t.Fatalf("expected one published rising event, got %+v", h.pub.Events)
	}
	if !h.pub.Events[0].Timestamp.Equal(t0.Add(40 * time.Millisecond)) {
		t.Errorf("expected transition at 40ms, got %v", h.pub.Events[0].Timestamp)
	}
	if v := h.led.Values(); len(v) != 1 || !v[0] {
		t.Errorf("expected LED switched on once, got %v", v)
	}

	// One transition in a 40ms window: 25 Hz, 2.5 rps with 10 edges per revolution
	got := lines(h.out)
	if len(got) != 1 || got[0] != "rps 2.50 rpm 150.00 voltage 3.30" {
		t.Errorf("unexpected report %q", got)
	}
}

func TestShortDutyPWMIsCounted(t *testing.T) {
	// 50Hz calibration LED with 10% duty (2ms ON, 18ms OFF) sampled every
	// 0.1ms for 1s: two edges per period make 10 revolutions per second.
	raw := make([]int, 10000)
	for i := range raw {
		if i%200 < 20 {
			raw[i] = 255
		}
	}
	h, _ := analogHarness(t, DefaultConfig(), 100*time.Microsecond, raw)

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := h.p.Counts()
	if c.Rising != 49 || c.Falling != 49 {
		t.Errorf("expected 49 rising and 49 falling transitions, got %+v", c)
	}
	rate := h.p.Rate()
	if !rate.Valid || rate.RPS < 9.5 || rate.RPS > 10.5 {
		t.Errorf("expected about 10 rps, got %+v", rate)
	}
	if len(h.pub.Events) != 98 {
		t.Errorf("expected 98 published events, got %d", len(h.pub.Events))
	}
}

func TestVerboseReportsEverySample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Verbose = true
	h, _ := analogHarness(t, cfg, 10*time.Millisecond, []int{0, 0, 0, 255, 255, 255})

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := lines(h.out)
	if len(got) != 6 {
		t.Fatalf("expected 6 report lines, got %d: %q", len(got), got)
	}
	if got[0] != "rps 0.00 rpm 0.00 voltage 0.00" {
		t.Errorf("unexpected first line %q", got[0])
	}
}

func TestRateTenRisingEdgesPerSecond(t *testing.T) {
	clk := newMock()
	var edges []gpio.EdgeEvent
	for i := 1; i <= 10; i++ {
		edges = append(edges, gpio.EdgeEvent{Time: t0.Add(time.Duration(i) * 100 * time.Millisecond), Rising: true})
	}
	in := &gpio.FakeInput{Edges: edges}
	cfg := DefaultConfig()
	cfg.EdgesPerRevolution = 10

	h, cancel := newHarness(t, cfg, clk, sampler.NewEdge(in, true, time.Second, clk))
	defer cancel()
	in.OnExhausted = cancel

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rate := h.p.Rate()
	if rate.Count != 10 || rate.Window != time.Second {
		t.Fatalf("expected 10 transitions in 1s, got %d in %v", rate.Count, rate.Window)
	}
	if rate.RPS != 1.0 || rate.RPM != 60.0 {
		t.Errorf("expected 1 rps / 60 rpm, got %v / %v", rate.RPS, rate.RPM)
	}
	if h.p.Counts().Rising != 10 {
		t.Errorf("expected 10 rising, got %+v", h.p.Counts())
	}

	// Rising edges only: the LED toggles
	v := h.led.Values()
	if len(v) != 10 || !v[0] || v[1] {
		t.Errorf("expected alternating LED values, got %v", v)
	}
}

func TestEdgeModeBypassesDebouncer(t *testing.T) {
	clk := newMock()
	// 1ms apart: would be rejected by a 5ms debouncer
	in := &gpio.FakeInput{Edges: []gpio.EdgeEvent{
		{Time: t0.Add(1 * time.Millisecond), Rising: true},
		{Time: t0.Add(2 * time.Millisecond), Rising: false},
		{Time: t0.Add(3 * time.Millisecond), Rising: true},
	}}
	h, cancel := newHarness(t, DefaultConfig(), clk, sampler.NewEdge(in, false, time.Second, clk))
	defer cancel()
	in.OnExhausted = cancel

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := h.p.Counts()
	if c.Rising != 2 || c.Falling != 1 || c.Ignored != 0 {
		t.Errorf("unexpected counts %+v", c)
	}
	if len(h.pub.Events) != 3 {
		t.Errorf("expected 3 published events, got %d", len(h.pub.Events))
	}
	if v := h.led.Values(); len(v) != 3 || !v[0] || v[1] || !v[2] {
		t.Errorf("expected LED to follow the edges, got %v", v)
	}
}

func TestTestModeMeasuresCycles(t *testing.T) {
	clk := newMock()
	// 1 sample per ms; 10ms ON, 30ms OFF
	var levels []bool
	for i := 0; i < 85; i++ {
		levels = append(levels, i%40 < 10)
	}
	in := gpio.NewFakeInput(levels)
	cfg := DefaultConfig()
	cfg.Test = true

	h, cancel := newHarness(t, cfg, clk, sampler.NewDigital(&tickingInput{FakeInput: in, clk: clk, step: time.Millisecond}, clk))
	defer cancel()
	in.OnExhausted = cancel

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := lines(h.out)
	if len(got) != 3 {
		t.Fatalf("expected 3 cycle lines, got %d: %q", len(got), got)
	}
	if !strings.HasSuffix(got[0], "ON FIRST") {
		t.Errorf("expected first rising edge as baseline, got %q", got[0])
	}
	want := "ON cycle 40.000 ms 25.00 Hz on 10 off 30 duty 0.25 high 10.000 ms low 30.000 ms duty 0.25"
	for _, l := range got[1:] {
		if !strings.HasSuffix(l, want) {
			t.Errorf("unexpected cycle line %q", l)
		}
	}
	if !strings.HasPrefix(got[1], "   41: time 0.041000 after   1.000 ms shows 3.30 V") {
		t.Errorf("unexpected line prefix %q", got[1])
	}

	c := h.p.Counts()
	if c.Rising != 3 || c.Falling != 2 {
		t.Errorf("unexpected counts %+v", c)
	}
}

func TestSampleErrorStopsLoop(t *testing.T) {
	h, dev := analogHarness(t, DefaultConfig(), time.Millisecond, []int{0})
	dev.ReadError = errors.New("i2c: remote I/O error")

	err := h.p.Run(h.ctx)
	if err == nil || !strings.Contains(err.Error(), "remote I/O error") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestPublishErrorDoesNotStopLoop(t *testing.T) {
	h, _ := analogHarness(t, DefaultConfig(), 10*time.Millisecond, []int{0, 255, 0, 255})
	h.pub.PublishError = errors.New("broker down")

	if err := h.p.Run(h.ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := h.p.Counts(); c.Accepted() != 3 {
		t.Errorf("expected 3 transitions despite publish errors, got %+v", c)
	}
}

func TestStartAndShutdown(t *testing.T) {
	clk := newMock()
	tr := status.NewTracker(clk, status.Config{Mode: "adc"})
	led := gpio.NewFakeOutput()
	pub := mqtt.NewFakePublisher()
	dev := adc.NewFakeDevice([]int{255})
	s := sampler.NewAnalog(&tickingDevice{FakeDevice: dev, clk: clk, step: 10 * time.Millisecond}, 0, logic.DefaultThreshold, clk)

	p, err := New(DefaultConfig(), Deps{Sampler: s, Sink: NewLEDSink(led, zerolog.Nop()), Publisher: pub, Tracker: tr, Clock: clk, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p.Start()
	if err := p.Step(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Snapshot().State != logic.StateOn {
		t.Error("expected tracker to follow the state")
	}

	clk.Add(2 * time.Second)
	sum := p.Shutdown("SIGINT")

	if sum.Samples != 1 || sum.Transitions != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.Elapsed != 2*time.Second+10*time.Millisecond {
		t.Errorf("unexpected elapsed %v", sum.Elapsed)
	}
	if led.On() {
		t.Error("expected LED off after shutdown")
	}
	if len(pub.SystemEvents) != 2 {
		t.Fatalf("expected STARTUP and SHUTDOWN, got %+v", pub.SystemEvents)
	}
	if pub.SystemEvents[0].Event != "STARTUP" || pub.SystemEvents[1].Event != "SHUTDOWN" {
		t.Errorf("unexpected system events %+v", pub.SystemEvents)
	}
	if !strings.Contains(string(pub.SystemPayloads[1]), `"reason":"SIGINT"`) {
		t.Errorf("expected shutdown reason in payload, got %s", pub.SystemPayloads[1])
	}
	if tr.Snapshot().State != logic.StateOff {
		t.Error("expected tracker OFF after shutdown")
	}
}

func TestPollIntervalRealClock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dev := adc.NewFakeDevice([]int{0, 255, 0})
	dev.OnExhausted = cancel

	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	p, err := New(cfg, Deps{Sampler: sampler.NewAnalog(dev, 0, logic.DefaultThreshold, clock.New()), Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.Reads != 3 {
		t.Errorf("expected 3 reads, got %d", dev.Reads)
	}
}

func TestNewValidates(t *testing.T) {
	s := sampler.NewAnalog(adc.NewFakeDevice([]int{0}), 0, logic.DefaultThreshold, newMock())

	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("expected error without sampler")
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero edges", func(c *Config) { c.EdgesPerRevolution = 0 }},
		{"zero window", func(c *Config) { c.WindowPeriod = 0 }},
		{"negative dwell", func(c *Config) { c.MinDwell = -time.Millisecond }},
		{"negative poll", func(c *Config) { c.PollInterval = -time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := New(cfg, Deps{Sampler: s}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLEDSinkSwallowsErrors(t *testing.T) {
	led := gpio.NewFakeOutput()
	led.SetError = errors.New("line busy")
	NewLEDSink(led, zerolog.Nop()).Set(true)

	if len(led.Values()) != 0 {
		t.Errorf("expected no recorded values, got %v", led.Values())
	}
}
