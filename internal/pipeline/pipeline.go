// Package pipeline runs the sampling loop: it feeds samples through the
// debouncer into the rate estimator (or the cycle tracker in test mode),
// drives the output sink and reports to the console and MQTT.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfellner/revcounter/internal/logic"
	"github.com/jfellner/revcounter/internal/mqtt"
	"github.com/jfellner/revcounter/internal/sampler"
	"github.com/jfellner/revcounter/internal/status"
)

// Defaults of the loop configuration.
const (
	DefaultMinDwell    = 5 * time.Millisecond
	DefaultEdgeTimeout = time.Second
)

// Config is fixed for the lifetime of a Pipeline.
type Config struct {
	// MinDwell is the minimum time between accepted transitions.
	MinDwell time.Duration
	// WindowPeriod is the length after which the rate window resets.
	WindowPeriod time.Duration
	// EdgesPerRevolution converts transitions into revolutions.
	EdgesPerRevolution int
	// PollInterval pauses between polled samples. Zero polls as fast as possible.
	PollInterval time.Duration
	// Test measures period and duty cycle of the raw signal instead of
	// the rotational speed.
	Test bool
	// Verbose reports every sample instead of every transition or cycle.
	Verbose bool
}

// DefaultConfig returns the steam engine defaults.
func DefaultConfig() Config {
	return Config{
		MinDwell:           DefaultMinDwell,
		WindowPeriod:       logic.DefaultWindowPeriod,
		EdgesPerRevolution: logic.DefaultEdgesPerSpoke * logic.DefaultSpokes,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinDwell < 0 {
		return errors.Errorf("invalid dwell time %v", c.MinDwell)
	}
	if c.WindowPeriod <= 0 {
		return errors.Errorf("invalid window period %v", c.WindowPeriod)
	}
	if c.EdgesPerRevolution <= 0 {
		return errors.Errorf("invalid edges per revolution %d", c.EdgesPerRevolution)
	}
	if c.PollInterval < 0 {
		return errors.Errorf("invalid poll interval %v", c.PollInterval)
	}
	return nil
}

// Deps are the collaborators of a Pipeline. Only Sampler is required.
type Deps struct {
	Sampler   sampler.Sampler
	Sink      Sink
	Publisher mqtt.Publisher
	Tracker   *status.Tracker
	Clock     clock.Clock
	Log       zerolog.Logger
	// Out receives the console report lines.
	Out io.Writer
}

// Pipeline owns all loop state. It is not safe for concurrent use.
type Pipeline struct {
	cfg     Config
	sampler sampler.Sampler
	sink    Sink
	pub     mqtt.Publisher
	tracker *status.Tracker
	clock   clock.Clock
	log     zerolog.Logger
	out     io.Writer

	debouncer *logic.Debouncer
	rate      *logic.RateEstimator
	cycles    *logic.CycleTracker
	stats     *logic.RunStats

	start      time.Time
	lastSample time.Time
	lastRate   logic.RateSnapshot
	edges      logic.Counts
	state      bool
	index      int
}

// New creates a pipeline whose windows start now.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sampler == nil {
		return nil, errors.New("no sampler")
	}

	p := &Pipeline{
		cfg:     cfg,
		sampler: deps.Sampler,
		sink:    deps.Sink,
		pub:     deps.Publisher,
		tracker: deps.Tracker,
		clock:   deps.Clock,
		log:     deps.Log,
		out:     deps.Out,
	}
	if p.sink == nil {
		p.sink = nopSink{}
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.out == nil {
		p.out = io.Discard
	}

	p.start = p.clock.Now()
	p.lastSample = p.start
	p.debouncer = logic.NewDebouncer(cfg.MinDwell, p.start)
	p.rate = logic.NewRateEstimator(cfg.EdgesPerRevolution, cfg.WindowPeriod, p.start)
	p.cycles = logic.NewCycleTracker()
	p.stats = logic.NewRunStats(p.start)
	return p, nil
}

// Start publishes the STARTUP lifecycle event.
func (p *Pipeline) Start() {
	p.publishSystem("STARTUP", "")
	p.log.Info().
		Dur("dwell", p.cfg.MinDwell).
		Dur("window", p.cfg.WindowPeriod).
		Int("edges_per_revolution", p.cfg.EdgesPerRevolution).
		Bool("test", p.cfg.Test).
		Msg("started")
}

// Run steps until ctx is done or a sample cannot be read.
// Cancellation is a clean exit and returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if p.cfg.PollInterval > 0 && !p.sampler.Debounced() {
			if !p.sleep(ctx, p.cfg.PollInterval) {
				return nil
			}
		}
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	t := p.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Step takes one sample and processes it.
func (p *Pipeline) Step(ctx context.Context) error {
	smp, err := p.sampler.Next(ctx)
	if errors.Is(err, sampler.ErrNoSample) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read sample")
	}

	p.stats.AddSample()
	latency := smp.Time.Sub(p.lastSample)
	p.lastSample = smp.Time
	p.index++

	if p.cfg.Test {
		p.measure(smp, latency)
	} else {
		p.count(smp)
	}

	if p.tracker != nil {
		p.tracker.Update(logic.BoolToState(p.state), p.counts(), p.lastRate, p.summary())
	}
	return nil
}

// count is the production path: debounce and estimate the rate.
func (p *Pipeline) count(smp logic.Sample) {
	p.rate.Advance(smp.Time)

	ev := p.transition(smp)
	if ev == nil {
		if p.cfg.Verbose {
			fmt.Fprintln(p.out, status.FormatRate(p.rate.Snapshot(smp.Time), smp.Voltage))
		}
		return
	}

	p.lastRate = p.rate.OnTransition(*ev)
	p.drive(*ev)
	fmt.Fprintln(p.out, status.FormatRate(p.lastRate, smp.Voltage))

	if p.pub != nil {
		if err := p.pub.Publish(*ev, p.lastRate); err != nil {
			p.log.Warn().Err(err).Msg("publish failed")
		}
	}
}

// transition returns the accepted transition of smp, if any.
func (p *Pipeline) transition(smp logic.Sample) *logic.TransitionEvent {
	if p.sampler.Debounced() {
		ev := logic.NewTransition(smp.Level, smp.Time)
		return &ev
	}

	ignored := p.debouncer.Counts().Ignored
	ev := p.debouncer.Accept(smp.Level, smp.Time)
	if n := p.debouncer.Counts().Ignored; n > ignored {
		p.log.Debug().
			Time("at", smp.Time).
			Bool("level", smp.Level).
			Dur("since", smp.Time.Sub(p.debouncer.LastTransition())).
			Int("ignored", n).
			Msg("ignored change")
	}
	return ev
}

// drive counts an accepted transition and updates the state and the sink.
// With rising edges only every edge toggles the sink.
func (p *Pipeline) drive(ev logic.TransitionEvent) {
	p.stats.AddTransition()
	if ev.Direction == logic.Rising {
		p.edges.Rising++
	} else {
		p.edges.Falling++
	}

	if p.sampler.RisingOnly() {
		p.state = !p.state
	} else {
		p.state = ev.Direction == logic.Rising
	}
	p.sink.Set(p.state)
}

// measure is the test path: track period and duty cycle of the raw signal.
func (p *Pipeline) measure(smp logic.Sample, latency time.Duration) {
	var cycle *logic.Cycle
	if p.sampler.RisingOnly() {
		if smp.Level {
			cycle = p.cycles.Rise(smp.Time)
		}
	} else {
		cycle = p.cycles.Observe(smp.Level, smp.Time)
	}

	if smp.Level != p.state || p.sampler.RisingOnly() {
		p.drive(logic.NewTransition(smp.Level, smp.Time))
	}

	if cycle == nil && !p.cfg.Verbose {
		return
	}
	fmt.Fprintf(p.out, "%5d: time %2.6f after %7.3f ms shows %4.2f V: %s\n",
		p.index,
		smp.Time.Sub(p.start).Seconds(),
		float64(latency)/float64(time.Millisecond),
		smp.Voltage,
		cycleText(smp.Level, cycle))
}

func cycleText(level bool, c *logic.Cycle) string {
	switch {
	case c == nil:
		return string(logic.BoolToState(level))
	case c.First:
		return "ON FIRST"
	case c.OnSamples+c.OffSamples == 0:
		return fmt.Sprintf("ON cycle %.3f ms %.2f Hz", ms(c.Period), c.Hz)
	default:
		return fmt.Sprintf("ON cycle %.3f ms %.2f Hz on %d off %d duty %.2f high %.3f ms low %.3f ms duty %.2f",
			ms(c.Period), c.Hz, c.OnSamples, c.OffSamples, c.SampleDuty, ms(c.High), ms(c.Low), c.TimeDuty)
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (p *Pipeline) counts() logic.Counts {
	c := p.edges
	c.Ignored = p.debouncer.Counts().Ignored
	return c
}

func (p *Pipeline) summary() logic.Summary {
	p.stats.SetIgnored(p.debouncer.Counts().Ignored)
	return p.stats.Summary(p.clock.Now())
}

// Counts returns the transition counters.
func (p *Pipeline) Counts() logic.Counts {
	return p.counts()
}

// Rate returns the latest rate snapshot.
func (p *Pipeline) Rate() logic.RateSnapshot {
	return p.lastRate
}

// Shutdown switches the sink off, publishes the SHUTDOWN event and
// returns the run summary. reason is e.g. the signal name.
func (p *Pipeline) Shutdown(reason string) logic.Summary {
	sum := p.summary()
	p.sink.Set(false)
	p.state = false

	if p.tracker != nil {
		p.tracker.Update(logic.StateOff, p.counts(), p.lastRate, sum)
	}
	p.publishSystem("SHUTDOWN", reason)
	p.log.Info().
		Dur("elapsed", sum.Elapsed).
		Int64("samples", sum.Samples).
		Int64("transitions", sum.Transitions).
		Int64("ignored", sum.Ignored).
		Str("reason", reason).
		Msg("stopped")
	return sum
}

func (p *Pipeline) publishSystem(event, reason string) {
	if p.pub == nil {
		return
	}
	ev := mqtt.SystemEvent{
		Timestamp: p.clock.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if p.tracker != nil {
		if cs, ok := p.pub.(mqtt.ConnectionStatus); ok {
			p.tracker.SetMQTTConnected(cs.IsConnected())
		}
		ev.RawPayload = status.FormatStatusEvent(p.tracker.Snapshot(), event, reason)
	}
	if err := p.pub.PublishSystem(ev); err != nil {
		p.log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	p.log.Debug().Str("event", event).Msg("published system event")
}
