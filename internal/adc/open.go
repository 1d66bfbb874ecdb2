package adc

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open initializes the host drivers, opens the named I2C bus ("" selects the
// first one) and detects the converter on it.
func Open(busName string) (Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "init host drivers")
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", busName)
	}
	dev, err := Detect(bus, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	return dev, nil
}
