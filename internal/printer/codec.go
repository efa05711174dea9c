package printer

import (
	"bytes"
	"encoding/binary"
)

const (
	// Width is the printable width in dots.
	Width = 384
	// GroupLines is the device line buffer size; every marker covers at most this many rows.
	GroupLines = 256

	markerTag      uint16 = 0x761d
	markerReserved uint16 = 0x0030

	lineFeed    byte = 0x0a
	lineFeedSub byte = 0x14
)

var (
	header = []byte{0x1b, 0x40, 0x1b, 0x61, 0x01, 0x1f, 0x11, 0x02, 0x04}
	footer = []byte{
		0x1b, 0x64, 0x02,
		0x1b, 0x64, 0x02,
		0x1f, 0x11, 0x08,
		0x1f, 0x11, 0x0e,
		0x1f, 0x11, 0x07,
		0x1f, 0x11, 0x09,
	}
)

// Bitmap is a 1-bit image, row-major from the top-left corner.
// A pixel value of 0 is ink.
type Bitmap struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBitmap returns a bitmap with every pixel set to no ink.
func NewBitmap(width, height int) *Bitmap {
	pix := make([]uint8, width*height)
	for i := range pix {
		pix[i] = 1
	}
	return &Bitmap{Width: width, Height: height, Pix: pix}
}

// At reports the pixel value at (x, y).
func (b *Bitmap) At(x, y int) uint8 {
	return b.Pix[y*b.Width+x]
}

// Set stores a pixel value at (x, y).
func (b *Bitmap) Set(x, y int, v uint8) {
	b.Pix[y*b.Width+x] = v
}

// Group is one marker plus the packed rows it announces.
type Group struct {
	Lines int
	Rows  [][]byte
}

// Frame is an encoded print job.
type Frame struct {
	Header []byte
	Groups []Group
	Footer []byte
}

// Encode converts a bitmap into the printer's line-oriented frame.
// Width must be a multiple of 8; no padding is applied.
func Encode(bm *Bitmap) Frame {
	frame := Frame{
		Header: append([]byte(nil), header...),
		Footer: append([]byte(nil), footer...),
	}
	for start := 0; start < bm.Height; start += GroupLines {
		lines := min(bm.Height-start, GroupLines)
		group := Group{Lines: lines, Rows: make([][]byte, 0, lines)}
		for y := start; y < start+lines; y++ {
			group.Rows = append(group.Rows, packRow(bm, y))
		}
		frame.Groups = append(frame.Groups, group)
	}
	return frame
}

func packRow(bm *Bitmap, y int) []byte {
	row := make([]byte, bm.Width/8)
	for x := range row {
		var b byte
		for bit := 0; bit < 8; bit++ {
			if bm.At(x*8+bit, y) == 0 {
				b |= 1 << (7 - bit)
			}
		}
		// a bare 0x0a is taken as a line feed by the firmware
		if b == lineFeed {
			b = lineFeedSub
		}
		row[x] = b
	}
	return row
}

// Marker returns the group marker record for a group of n lines.
func Marker(n int) []byte {
	m := make([]byte, 8)
	binary.LittleEndian.PutUint16(m[0:], markerTag)
	binary.LittleEndian.PutUint16(m[2:], markerReserved)
	binary.LittleEndian.PutUint16(m[4:], markerReserved)
	binary.LittleEndian.PutUint16(m[6:], uint16(n-1))
	return m
}

// Bytes flattens the frame into the exact wire payload.
func (f Frame) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(f.Header)
	for _, g := range f.Groups {
		buf.Write(Marker(g.Lines))
		for _, row := range g.Rows {
			buf.Write(row)
		}
	}
	buf.Write(f.Footer)
	return buf.Bytes()
}

// Lines returns the total number of rows carried by the frame.
func (f Frame) Lines() int {
	total := 0
	for _, g := range f.Groups {
		total += g.Lines
	}
	return total
}
