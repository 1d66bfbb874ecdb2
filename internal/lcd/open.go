package lcd

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Open opens the named I2C bus ("" selects the first one) and initializes
// the display at the first backpack address that answers.
func Open(busName string) (*LCD1602, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "init host drivers")
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", busName)
	}

	for _, addr := range []uint16{AddrPCF8574, AddrPCF8574A} {
		var b [1]byte
		if bus.Tx(addr, nil, b[:]) != nil {
			continue
		}
		d, err := New(bus, addr)
		if err != nil {
			bus.Close()
			return nil, err
		}
		d.closer = bus.Close
		return d, nil
	}
	bus.Close()
	return nil, errors.New("lcd: no PCF8574 backpack found at 0x27 or 0x3f")
}
