package lcd

import "strings"

// FakeDisplay records the text written to it.
type FakeDisplay struct {
	lines  [Rows][Columns]byte
	Closed bool
	// Writes counts the calls to Write.
	Writes int
}

// NewFakeDisplay creates a blank FakeDisplay.
func NewFakeDisplay() *FakeDisplay {
	f := &FakeDisplay{}
	f.Clear()
	return f
}

// Write stores text at col, row.
func (f *FakeDisplay) Write(col, row int, text string) error {
	f.Writes++
	if row < 0 || row >= Rows {
		return nil
	}
	for i := 0; i < len(text) && col+i < Columns; i++ {
		f.lines[row][col+i] = text[i]
	}
	return nil
}

// Clear blanks the display.
func (f *FakeDisplay) Clear() error {
	for r := range f.lines {
		for c := range f.lines[r] {
			f.lines[r][c] = ' '
		}
	}
	return nil
}

// Line returns the content of row without trailing blanks.
func (f *FakeDisplay) Line(row int) string {
	return strings.TrimRight(string(f.lines[row][:]), " ")
}

// Close marks the display as closed.
func (f *FakeDisplay) Close() error {
	f.Closed = true
	return nil
}
