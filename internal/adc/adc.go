// Package adc reads analog inputs through an I2C analog-to-digital converter.
// Supported chips are the PCF8591 and the ADS7830 found on the usual
// Raspberry Pi starter kit ADC boards.
package adc

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// I2C addresses probed by Detect, in order.
const (
	AddrPCF8591 = 0x48
	AddrADS7830 = 0x4b
)

// MaxSample is the largest value returned by the 8-bit converters.
const MaxSample = 255

// ErrNotFound is returned when no supported converter answers on the bus.
var ErrNotFound = errors.New("no correct I2C address found, please use command 'i2cdetect -y 1' to check the I2C address")

// Bus is the part of an I2C bus the converters need.
// periph.io/x/conn/v3/i2c.Bus satisfies it.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// Device is an analog input device.
type Device interface {
	// Read returns the raw sample of channel in [0, Max()].
	Read(channel int) (int, error)
	// Max returns the largest raw sample value.
	Max() int
	// Channels returns the number of input channels.
	Channels() int
	// Close releases the device and its bus.
	Close() error
	fmt.Stringer
}

// Probe reports whether a device answers at addr.
func Probe(bus Bus, addr uint16) bool {
	var b [1]byte
	return bus.Tx(addr, nil, b[:]) == nil
}

// Detect probes the known addresses and returns a device for the first
// converter that answers. closer, if non-nil, is closed with the device.
func Detect(bus Bus, closer io.Closer) (Device, error) {
	switch {
	case Probe(bus, AddrPCF8591):
		return &PCF8591{chip: chip{bus: bus, addr: AddrPCF8591, closer: closer}}, nil
	case Probe(bus, AddrADS7830):
		return &ADS7830{chip: chip{bus: bus, addr: AddrADS7830, closer: closer}}, nil
	default:
		return nil, ErrNotFound
	}
}

type chip struct {
	bus    Bus
	addr   uint16
	closer io.Closer
}

func (c *chip) Max() int {
	return MaxSample
}

func (c *chip) Close() error {
	if c.closer == nil {
		return nil
	}
	return errors.Wrap(c.closer.Close(), "close i2c bus")
}

// PCF8591 is a 4 channel 8-bit converter.
type PCF8591 struct {
	chip
}

const pcf8591Control = 0x40 // analog output enable

// Read selects channel and returns its conversion. The first byte read back
// is the result of the previous conversion and is discarded.
func (d *PCF8591) Read(channel int) (int, error) {
	if channel < 0 || channel >= d.Channels() {
		return 0, errors.Errorf("pcf8591: invalid channel %d", channel)
	}
	var r [2]byte
	if err := d.bus.Tx(d.addr, []byte{pcf8591Control | byte(channel)}, r[:]); err != nil {
		return 0, errors.Wrapf(err, "pcf8591: read channel %d", channel)
	}
	return int(r[1]), nil
}

// Channels returns 4.
func (d *PCF8591) Channels() int {
	return 4
}

func (d *PCF8591) String() string {
	return fmt.Sprintf("PCF8591@%#x", d.addr)
}

// ADS7830 is an 8 channel 8-bit converter.
type ADS7830 struct {
	chip
}

const ads7830SingleEnded = 0x84 // single-ended inputs, internal reference off, converter on

// command returns the command byte for a single-ended read of channel.
// The channel select bits are interleaved: C2 = ch[0], C1 = ch[2], C0 = ch[1].
func (d *ADS7830) command(channel int) byte {
	sel := byte((channel<<2 | channel>>1) & 0x07)
	return ads7830SingleEnded | sel<<4
}

// Read returns the conversion of channel.
func (d *ADS7830) Read(channel int) (int, error) {
	if channel < 0 || channel >= d.Channels() {
		return 0, errors.Errorf("ads7830: invalid channel %d", channel)
	}
	var r [1]byte
	if err := d.bus.Tx(d.addr, []byte{d.command(channel)}, r[:]); err != nil {
		return 0, errors.Wrapf(err, "ads7830: read channel %d", channel)
	}
	return int(r[0]), nil
}

// Channels returns 8.
func (d *ADS7830) Channels() int {
	return 8
}

func (d *ADS7830) String() string {
	return fmt.Sprintf("ADS7830@%#x", d.addr)
}
