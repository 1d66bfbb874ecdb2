// Command button-led mirrors the push button on GPIO18 to the LED on GPIO17
// and reports the polling throughput on exit.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/jfellner/revcounter/internal/gpio"
	"github.com/jfellner/revcounter/internal/logic"
	"github.com/jfellner/revcounter/internal/pipeline"
	"github.com/jfellner/revcounter/internal/sampler"
	"github.com/jfellner/revcounter/internal/status"
)

type options struct {
	chip    string
	poll    time.Duration
	dwell   time.Duration
	bounce  time.Duration
	verbose bool
	level   string
}

func main() {
	var o options
	pflag.StringVar(&o.chip, "chip", gpio.DefaultChip, "GPIO chip")
	pflag.DurationVar(&o.poll, "poll", 0, "Pause between samples (0 polls as fast as possible)")
	pflag.DurationVar(&o.dwell, "dwell", 0, "Minimum time between accepted changes")
	pflag.DurationVar(&o.bounce, "bounce", time.Millisecond, "Kernel debounce period of the button")
	pflag.BoolVarP(&o.verbose, "verbose", "v", false, "Print every change")
	pflag.StringVarP(&o.level, "level", "l", "info", "Set log level")
	pflag.Parse()

	level, err := zerolog.ParseLevel(o.level)
	if err != nil {
		Exitf("Invalid log level '%s': %v\n", o.level, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if err := run(o, logger); err != nil {
		Exitf("fatal: %v\n", err)
	}
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}

func config(o options) pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.MinDwell = o.dwell
	cfg.PollInterval = o.poll
	return cfg
}

func run(o options, log zerolog.Logger) error {
	led, err := gpio.NewOutput(o.chip, gpio.PinLED)
	if err != nil {
		return errors.Wrap(err, "init LED")
	}
	defer closeLogged(led, "LED", log)

	button, err := gpio.NewInput(o.chip, gpio.PinButton, gpio.ButtonConfig(o.bounce))
	if err != nil {
		return errors.Wrap(err, "init button")
	}
	defer closeLogged(button, "button", log)

	var out io.Writer = io.Discard
	if o.verbose {
		out = os.Stdout
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("button", gpio.PinButton).Int("led", gpio.PinLED).Msg("press the button, Ctrl-C to stop")
	sum, counts, err := mirror(ctx, button, led, config(o), clock.New(), log, out)
	fmt.Print(status.FormatSummary(sum, counts))
	return err
}

// mirror copies the button state to the LED until ctx is done.
func mirror(ctx context.Context, button gpio.Input, led gpio.Output, cfg pipeline.Config, clk clock.Clock, log zerolog.Logger, out io.Writer) (logic.Summary, logic.Counts, error) {
	p, err := pipeline.New(cfg, pipeline.Deps{
		Sampler: sampler.NewDigital(button, clk),
		Sink:    pipeline.NewLEDSink(led, log),
		Clock:   clk,
		Log:     log,
		Out:     out,
	})
	if err != nil {
		return logic.Summary{}, logic.Counts{}, errors.WithStack(err)
	}

	err = p.Run(ctx)
	sum := p.Shutdown(shutdownReason(ctx, err))
	return sum, p.Counts(), err
}

func shutdownReason(ctx context.Context, err error) string {
	switch {
	case err != nil:
		return "ERROR"
	case ctx.Err() != nil:
		return "SIGNAL"
	default:
		return "EXIT"
	}
}

func closeLogged(c io.Closer, what string, log zerolog.Logger) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("device", what).Msg("close failed")
	}
}
