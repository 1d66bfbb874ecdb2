// Command revcounter measures the rotational speed of a steam engine
// flywheel from an LDR (through an I2C ADC or a digital input) or an IR
// breakbeam sensor. A software PWM LED on the LDR allows calibration.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/jfellner/revcounter/internal/adc"
	"github.com/jfellner/revcounter/internal/gpio"
	"github.com/jfellner/revcounter/internal/lcd"
	"github.com/jfellner/revcounter/internal/logic"
	"github.com/jfellner/revcounter/internal/mqtt"
	"github.com/jfellner/revcounter/internal/pipeline"
	"github.com/jfellner/revcounter/internal/sampler"
	"github.com/jfellner/revcounter/internal/status"
)

const (
	modeADC      = "adc"
	modeDigital  = "digital"
	modeInfrared = "infrared"
)

const (
	defaultFrequency = 10
	defaultDuty      = 0.1
)

var maskAny = errors.WithStack

type options struct {
	test        bool
	digital     bool
	infrared    bool
	verbose     bool
	skipRelease bool
	lcd         bool
	printState  bool

	dwell       time.Duration
	window      time.Duration
	poll        time.Duration
	edgeTimeout time.Duration
	settle      time.Duration
	bounce      time.Duration
	threshold   float64

	spokes           int
	edgesPerSpoke    int
	edgesPerSpokeSet bool

	broker   string
	clientID string
	level    string
	chip     string
	i2cBus   string

	// Positional arguments
	frequency int
	duty      float64
}

func main() {
	var o options
	pflag.BoolVarP(&o.test, "test", "t", false, "Measure period and duty cycle of the PWM LED instead of the speed")
	pflag.BoolVarP(&o.digital, "digital", "d", false, "Read the LDR voltage divider on GPIO18 instead of the ADC")
	pflag.BoolVarP(&o.infrared, "infrared", "i", false, "Read the IR breakbeam sensor on GPIO23")
	pflag.BoolVarP(&o.verbose, "verbose", "v", false, "Report every sample")
	pflag.BoolVarP(&o.skipRelease, "skip-release", "s", false, "Count rising edges only")
	pflag.BoolVar(&o.lcd, "lcd", true, "Show status on the LCD1602")
	pflag.BoolVar(&o.printState, "print-state", false, "Print the current input state as JSON and exit")
	pflag.DurationVar(&o.dwell, "dwell", pipeline.DefaultMinDwell, "Minimum time between accepted transitions")
	pflag.DurationVar(&o.window, "window", logic.DefaultWindowPeriod, "Rate window period")
	pflag.DurationVar(&o.poll, "poll", 0, "Pause between polled samples (0 polls as fast as possible)")
	pflag.DurationVar(&o.edgeTimeout, "edge-timeout", pipeline.DefaultEdgeTimeout, "Maximum wait for a single edge")
	pflag.DurationVar(&o.settle, "settle", 3*time.Second, "Wait before sampling starts")
	pflag.DurationVar(&o.bounce, "bounce", time.Millisecond, "Kernel debounce period of the digital input")
	pflag.Float64Var(&o.threshold, "threshold", logic.DefaultThreshold, "ON threshold of the ADC voltage")
	pflag.IntVar(&o.spokes, "spokes", logic.DefaultSpokes, "Number of spokes of the flywheel")
	pflag.IntVar(&o.edgesPerSpoke, "edges-per-spoke", logic.DefaultEdgesPerSpoke, "Transitions per spoke (1 with --skip-release)")
	pflag.StringVar(&o.broker, "broker", "", "MQTT broker address (empty disables publishing)")
	pflag.StringVar(&o.clientID, "client-id", mqtt.DefaultClientID, "MQTT client id")
	pflag.StringVarP(&o.level, "level", "l", "info", "Set log level")
	pflag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO chip")
	pflag.StringVar(&o.i2cBus, "i2c-bus", "", "I2C bus of ADC and LCD (empty selects the first)")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [frequency [dutycycle]]\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()
	o.edgesPerSpokeSet = pflag.CommandLine.Changed("edges-per-spoke")

	level, err := zerolog.ParseLevel(o.level)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", o.level, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if err := parseArgs(pflag.Args(), &o); err != nil {
		pflag.Usage()
		Exitf("%v\n", err)
	}

	if err := run(o, logger); err != nil {
		Exitf("fatal: %v\n", err)
	}
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}

// parseArgs parses the positional frequency and duty cycle of the PWM LED.
func parseArgs(args []string, o *options) error {
	o.frequency = defaultFrequency
	o.duty = defaultDuty
	if len(args) > 2 {
		return errors.Errorf("too many arguments: %s", strings.Join(args, " "))
	}
	if len(args) > 0 {
		f, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrapf(err, "invalid frequency %q", args[0])
		}
		o.frequency = f
	}
	if len(args) > 1 {
		d, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return errors.Wrapf(err, "invalid duty cycle %q", args[1])
		}
		o.duty = d
	}
	return gpio.ValidatePWM(float64(o.frequency), o.duty)
}

func (o options) mode() (string, error) {
	switch {
	case o.digital && o.infrared:
		return "", errors.New("--digital and --infrared are mutually exclusive")
	case o.digital:
		return modeDigital, nil
	case o.infrared:
		return modeInfrared, nil
	default:
		return modeADC, nil
	}
}

// edgeMode reports whether the input is read by edge interrupts.
func (o options) edgeMode(mode string) bool {
	return mode == modeInfrared || mode == modeDigital
}

func (o options) pipelineConfig(mode string) pipeline.Config {
	edges := o.edgesPerSpoke
	if o.skipRelease && o.edgeMode(mode) && !o.edgesPerSpokeSet {
		edges = 1
	}
	return pipeline.Config{
		MinDwell:           o.dwell,
		WindowPeriod:       o.window,
		EdgesPerRevolution: edges * o.spokes,
		PollInterval:       o.poll,
		Test:               o.test,
		Verbose:            o.verbose,
	}
}

func (o options) statusConfig(mode string, cfg pipeline.Config) status.Config {
	return status.Config{
		Mode:               mode,
		Test:               o.test,
		SkipRelease:        o.skipRelease && o.edgeMode(mode),
		MinDwellMs:         cfg.MinDwell.Milliseconds(),
		WindowMs:           cfg.WindowPeriod.Milliseconds(),
		PollMs:             cfg.PollInterval.Milliseconds(),
		EdgesPerRevolution: cfg.EdgesPerRevolution,
		Broker:             o.broker,
	}
}

// banner returns the two LCD rows shown at startup.
func (o options) banner(mode string) (string, string) {
	top := fmt.Sprintf("%dHz duty %.2f", o.frequency, o.duty)
	flags := []string{mode}
	if o.test {
		flags = append(flags, "test")
	}
	if o.skipRelease {
		flags = append(flags, "skip")
	}
	if o.verbose {
		flags = append(flags, "verb")
	}
	return top, strings.Join(flags, " ")
}

func run(o options, log zerolog.Logger) error {
	mode, err := o.mode()
	if err != nil {
		return err
	}
	clk := clock.New()
	cfg := o.pipelineConfig(mode)

	led, err := gpio.NewOutput(o.chip, gpio.PinLED)
	if err != nil {
		return errors.Wrap(err, "init LED")
	}
	defer closeLogged(led, "LED", log)

	pwmOut, err := gpio.NewOutput(o.chip, gpio.PinPWMLED)
	if err != nil {
		return errors.Wrap(err, "init PWM LED")
	}
	defer closeLogged(pwmOut, "PWM LED", log)
	pwm := gpio.NewSoftPWM(pwmOut)
	if err := pwm.Set(float64(o.frequency), o.duty); err != nil {
		return maskAny(err)
	}

	var display lcd.Display
	if o.lcd {
		d, err := lcd.Open(o.i2cBus)
		if err != nil {
			log.Warn().Err(err).Msg("no LCD, continuing without")
		} else {
			display = d
			defer closeLogged(d, "LCD", log)
			writeRows(display, log)(o.banner(mode))
		}
	}

	s, device, err := openSampler(o, mode, clk)
	if err != nil {
		return err
	}
	defer closeLogged(s, "input", log)
	log.Info().Str("mode", mode).Str("device", device).Int("frequency", o.frequency).Float64("duty", o.duty).Msg("input ready")

	tracker := status.NewTracker(clk, o.statusConfig(mode, cfg))
	tracker.SetDevice(device)

	if o.printState {
		return printState(context.Background(), s, tracker, os.Stdout)
	}

	var pub mqtt.Publisher
	if o.broker != "" {
		rp, err := mqtt.NewRealPublisher(o.broker, o.clientID, log)
		if err != nil {
			return errors.Wrap(err, "init mqtt")
		}
		defer rp.Close()
		pub = rp
	}

	p, err := pipeline.New(cfg, pipeline.Deps{
		Sampler:   s,
		Sink:      pipeline.NewLEDSink(led, log),
		Publisher: pub,
		Tracker:   tracker,
		Clock:     clk,
		Log:       log,
		Out:       os.Stdout,
	})
	if err != nil {
		return maskAny(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reasons := make(chan string, 1)
	go func() {
		select {
		case s := <-sigCh:
			log.Info().Str("signal", s.String()).Msg("shutting down")
			reasons <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	if o.test {
		// The LCD keeps showing the PWM parameters
		display = nil
	}
	err = runLoop(ctx, p, pwm, display, tracker, o.settle, clk, log)
	cancel()

	reason := "EXIT"
	if err != nil {
		reason = "ERROR"
	}
	select {
	case r := <-reasons:
		reason = r
	default:
	}
	sum := p.Shutdown(reason)
	fmt.Print(status.FormatSummary(sum, p.Counts()))
	return err
}

// openSampler opens the input of mode. It returns the sampler and a
// description of the device.
func openSampler(o options, mode string, clk clock.Clock) (sampler.Sampler, string, error) {
	switch mode {
	case modeADC:
		dev, err := adc.Open(o.i2cBus)
		if err != nil {
			return nil, "", errors.Wrap(err, "init ADC")
		}
		return sampler.NewAnalog(dev, 0, o.threshold, clk), dev.String(), nil

	case modeDigital:
		cfg := gpio.ButtonConfig(o.bounce)
		cfg.Edges = true
		in, err := gpio.NewInput(o.chip, gpio.PinButton, cfg)
		if err != nil {
			return nil, "", errors.Wrap(err, "init LDR input")
		}
		return sampler.NewEdge(in, o.skipRelease, o.edgeTimeout, clk), fmt.Sprintf("%s:%d", o.chip, gpio.PinButton), nil

	case modeInfrared:
		cfg := gpio.BreakbeamConfig()
		cfg.Edges = true
		in, err := gpio.NewInput(o.chip, gpio.PinBreakbeam, cfg)
		if err != nil {
			return nil, "", errors.Wrap(err, "init breakbeam input")
		}
		return sampler.NewEdge(in, o.skipRelease, o.edgeTimeout, clk), fmt.Sprintf("%s:%d", o.chip, gpio.PinBreakbeam), nil
	}
	return nil, "", errors.Errorf("unknown mode %q", mode)
}

// printState takes a single sample and prints the status as JSON.
// An edge input that stays idle until the edge timeout reports UNKNOWN.
func printState(ctx context.Context, s sampler.Sampler, tracker *status.Tracker, out io.Writer) error {
	smp, err := s.Next(ctx)
	switch {
	case errors.Is(err, sampler.ErrNoSample):
		tracker.Update("", logic.Counts{}, logic.RateSnapshot{}, logic.Summary{})
	case err != nil:
		return errors.Wrap(err, "read input")
	default:
		tracker.Update(logic.BoolToState(smp.Level), logic.Counts{}, logic.RateSnapshot{}, logic.Summary{Samples: 1})
	}
	_, err = fmt.Fprintf(out, "%s\n", status.FormatJSON(tracker.Snapshot()))
	return maskAny(err)
}

// runLoop runs the PWM, the sampling loop and the LCD refresh until ctx is
// done or one of them fails. display may be nil.
func runLoop(ctx context.Context, p *pipeline.Pipeline, pwm *gpio.SoftPWM, display lcd.Display, tracker *status.Tracker, settle time.Duration, clk clock.Clock, log zerolog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	if pwm != nil {
		g.Go(func() error { return pwm.Run(ctx) })
	}

	g.Go(func() error {
		if settle > 0 {
			log.Info().Dur("settle", settle).Msg("waiting for the input to settle")
			t := clk.Timer(settle)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
		}
		p.Start()
		return p.Run(ctx)
	})

	if display != nil && tracker != nil {
		ticker := clk.Ticker(time.Second)
		defer ticker.Stop()
		g.Go(func() error {
			refreshDisplay(ctx, display, tracker, ticker.C, log)
			return nil
		})
	}

	return g.Wait()
}

// refreshDisplay shows the current speed on every tick until ctx is done.
func refreshDisplay(ctx context.Context, display lcd.Display, tracker *status.Tracker, ticks <-chan time.Time, log zerolog.Logger) {
	write := writeRows(display, log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			write(status.LCDLines(tracker.Snapshot()))
		}
	}
}

// writeRows returns a function writing both rows padded to the full width.
// Display errors are logged only.
func writeRows(display lcd.Display, log zerolog.Logger) func(top, bottom string) {
	return func(top, bottom string) {
		for row, text := range []string{top, bottom} {
			if err := display.Write(0, row, fmt.Sprintf("%-*s", lcd.Columns, text)); err != nil {
				log.Debug().Err(err).Int("row", row).Msg("LCD write failed")
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func closeLogged(c io.Closer, what string, log zerolog.Logger) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("device", what).Msg("close failed")
	}
}
