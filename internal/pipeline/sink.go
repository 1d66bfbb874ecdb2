package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/jfellner/revcounter/internal/gpio"
)

// Sink receives the accepted signal state. Set is fire-and-forget.
type Sink interface {
	Set(on bool)
}

// LEDSink mirrors the state to a digital output. Write errors are logged,
// never retried.
type LEDSink struct {
	out gpio.Output
	log zerolog.Logger
}

// NewLEDSink creates a sink driving out.
func NewLEDSink(out gpio.Output, log zerolog.Logger) *LEDSink {
	return &LEDSink{out: out, log: log}
}

// Set switches the LED.
func (s *LEDSink) Set(on bool) {
	if err := s.out.Set(on); err != nil {
		s.log.Warn().Err(err).Bool("on", on).Msg("failed to set LED")
	}
}

type nopSink struct{}

func (nopSink) Set(bool) {}
