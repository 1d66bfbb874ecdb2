// Package lcd drives a 16x2 character LCD (HD44780) behind a PCF8574 I2C
// port expander, as used by the LCD1602 I2C modules.
package lcd

import (
	"time"

	"github.com/pkg/errors"
)

// I2C addresses of the PCF8574 and PCF8574A backpacks, probed in order.
const (
	AddrPCF8574  = 0x27
	AddrPCF8574A = 0x3f
)

// Geometry of the LCD1602.
const (
	Columns = 16
	Rows    = 2
)

// Display writes text to a character display.
type Display interface {
	// Write writes text starting at col, row. Text beyond the line is cut.
	Write(col, row int, text string) error
	// Clear blanks the display and homes the cursor.
	Clear() error
	// Close switches the backlight off and releases the bus.
	Close() error
}

// Bus is the part of an I2C bus the display needs.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// PCF8574 pin assignment on the backpack.
const (
	bitRS        = 0x01
	bitEnable    = 0x04
	bitBacklight = 0x08
)

// HD44780 commands.
const (
	cmdClear       = 0x01
	cmdEntryMode   = 0x06 // increment, no shift
	cmdDisplayOn   = 0x0c // display on, cursor off, blink off
	cmdFunction4x2 = 0x28 // 4-bit bus, 2 lines, 5x8 font
	cmdSetDDRAM    = 0x80
)

var rowOffsets = [Rows]byte{0x00, 0x40}

// LCD1602 is a Display on an I2C backpack.
type LCD1602 struct {
	bus       Bus
	addr      uint16
	backlight byte
	closer    func() error
	sleep     func(time.Duration)
}

// New initializes the display at addr on bus.
func New(bus Bus, addr uint16) (*LCD1602, error) {
	d := &LCD1602{
		bus:       bus,
		addr:      addr,
		backlight: bitBacklight,
		sleep:     time.Sleep,
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *LCD1602) init() error {
	// Force 8-bit mode three times, then switch to 4-bit.
	for _, nibble := range []byte{0x30, 0x30, 0x30, 0x20} {
		if err := d.writeNibble(nibble, 0); err != nil {
			return errors.Wrap(err, "lcd init")
		}
		d.sleep(5 * time.Millisecond)
	}
	for _, cmd := range []byte{cmdFunction4x2, cmdDisplayOn, cmdEntryMode} {
		if err := d.command(cmd); err != nil {
			return errors.Wrap(err, "lcd init")
		}
	}
	return d.Clear()
}

// Write writes text at col, row.
func (d *LCD1602) Write(col, row int, text string) error {
	if row < 0 || row >= Rows || col < 0 || col >= Columns {
		return errors.Errorf("lcd: position %d,%d out of range", col, row)
	}
	if err := d.command(cmdSetDDRAM | (rowOffsets[row] + byte(col))); err != nil {
		return err
	}
	for i := 0; i < len(text) && col+i < Columns; i++ {
		if err := d.writeByte(text[i], bitRS); err != nil {
			return errors.Wrap(err, "lcd write")
		}
	}
	return nil
}

// Clear blanks the display.
func (d *LCD1602) Clear() error {
	if err := d.command(cmdClear); err != nil {
		return err
	}
	d.sleep(2 * time.Millisecond)
	return nil
}

// Close switches the backlight off and releases the bus.
func (d *LCD1602) Close() error {
	d.backlight = 0
	err := d.tx(0)
	if d.closer != nil {
		if cerr := d.closer(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return errors.Wrap(err, "lcd close")
}

func (d *LCD1602) command(cmd byte) error {
	return errors.Wrapf(d.writeByte(cmd, 0), "lcd command %#x", cmd)
}

func (d *LCD1602) writeByte(b, mode byte) error {
	if err := d.writeNibble(b&0xf0, mode); err != nil {
		return err
	}
	return d.writeNibble(b<<4, mode)
}

// writeNibble clocks the high nibble of b into the controller.
func (d *LCD1602) writeNibble(b, mode byte) error {
	data := b&0xf0 | mode | d.backlight
	if err := d.tx(data | bitEnable); err != nil {
		return err
	}
	return d.tx(data)
}

func (d *LCD1602) tx(b byte) error {
	return d.bus.Tx(d.addr, []byte{b}, nil)
}
