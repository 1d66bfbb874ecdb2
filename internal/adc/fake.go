package adc

import (
	"fmt"

	"github.com/pkg/errors"
)

// FakeDevice is a test double that returns scripted samples.
type FakeDevice struct {
	// Samples contains scripted raw values. Each call to Read() consumes the
	// next sample; once exhausted the last sample repeats.
	Samples []int

	// OnExhausted, if set, is called once when the last sample was consumed.
	OnExhausted func()

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Closed tracks if Close was called
	Closed bool

	// Reads counts the calls to Read.
	Reads int

	index     int
	exhausted bool
}

// NewFakeDevice creates a FakeDevice with the given samples.
func NewFakeDevice(samples []int) *FakeDevice {
	return &FakeDevice{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeDevice) Read(channel int) (int, error) {
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	} else if !f.exhausted {
		f.exhausted = true
		if f.OnExhausted != nil {
			f.OnExhausted()
		}
	}
	return v, nil
}

// Max returns MaxSample.
func (f *FakeDevice) Max() int {
	return MaxSample
}

// Channels returns 1.
func (f *FakeDevice) Channels() int {
	return 1
}

// Close marks the device as closed.
func (f *FakeDevice) Close() error {
	f.Closed = true
	return nil
}

func (f *FakeDevice) String() string {
	return fmt.Sprintf("fake(%d samples)", len(f.Samples))
}

// FakeBus answers transactions for a fixed set of addresses.
type FakeBus struct {
	// Devices maps an address to the bytes returned on reads.
	Devices map[uint16][]byte
	// Writes records every written buffer per address.
	Writes map[uint16][][]byte
}

// NewFakeBus creates a bus on which the given addresses answer.
func NewFakeBus(devices map[uint16][]byte) *FakeBus {
	return &FakeBus{Devices: devices, Writes: map[uint16][][]byte{}}
}

// Tx records w and copies the configured response into r.
func (b *FakeBus) Tx(addr uint16, w, r []byte) error {
	resp, ok := b.Devices[addr]
	if !ok {
		return errors.Errorf("i2c: no device at %#x", addr)
	}
	if len(w) > 0 {
		b.Writes[addr] = append(b.Writes[addr], append([]byte(nil), w...))
	}
	copy(r, resp)
	return nil
}
