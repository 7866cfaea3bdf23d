// Package wire implements bit-exact encode/decode of RTPS messages,
// submessages, and the PL_CDR parameter-list format (spec.md §4.1, §8
// invariants 3 and 4).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Endianness selects the byte order a submessage body (and any CDR
// payload nested inside it) is encoded with. Selected by submessage
// flag bit 0: set = little-endian, clear = big-endian.
type Endianness bool

const (
	BigEndian    Endianness = false
	LittleEndian Endianness = true
)

func (e Endianness) order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// RepresentationId is the 2-byte CDR encapsulation kind. It is always
// written/read big-endian regardless of the payload's own endianness —
// this is part of the wire format, not a stylistic choice.
type RepresentationId uint16

const (
	ReprCDR_BE    RepresentationId = 0x0000
	ReprCDR_LE    RepresentationId = 0x0001
	ReprPL_CDR_BE RepresentationId = 0x0002
	ReprPL_CDR_LE RepresentationId = 0x0003
	ReprCDR2_BE   RepresentationId = 0x0010
	ReprCDR2_LE   RepresentationId = 0x0011
	ReprPL_CDR2_BE RepresentationId = 0x0012
	ReprPL_CDR2_LE RepresentationId = 0x0013
)

func (r RepresentationId) Endianness() Endianness {
	switch r {
	case ReprCDR_LE, ReprPL_CDR_LE, ReprCDR2_LE, ReprPL_CDR2_LE:
		return LittleEndian
	default:
		return BigEndian
	}
}

func (r RepresentationId) IsParameterList() bool {
	switch r {
	case ReprPL_CDR_BE, ReprPL_CDR_LE, ReprPL_CDR2_BE, ReprPL_CDR2_LE:
		return true
	default:
		return false
	}
}

// MaxAlign returns the alignment granularity for this representation:
// CDR v1 aligns up to 8 bytes, CDR v2 up to 4.
func (r RepresentationId) MaxAlign() int {
	switch r {
	case ReprCDR2_BE, ReprCDR2_LE, ReprPL_CDR2_BE, ReprPL_CDR2_LE:
		return 4
	default:
		return 8
	}
}

var ErrTruncated = errors.New("wire: buffer truncated")

// Writer accumulates an encoded CDR/PL_CDR payload. Alignment is computed
// relative to the writer's own start (callers embed it at a 4-byte aligned
// offset inside the submessage body, so this equals alignment relative to
// the submessage body per spec.md §4.1).
type Writer struct {
	buf   []byte
	order binary.ByteOrder
}

func NewWriter(e Endianness) *Writer {
	return &Writer{order: e.order()}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

// Align pads the buffer with zero bytes until its length is a multiple of n.
func (w *Writer) Align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) WriteU16(v uint16) {
	var tmp [2]byte
	w.order.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteU32(v uint32) {
	w.Align(4)
	var tmp [4]byte
	w.order.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	w.Align(8)
	var tmp [8]byte
	w.order.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteString writes a CDR string: u32 length (including NUL terminator),
// the bytes, the NUL terminator, then pads to 4-byte alignment.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	w.Align(4)
}

// Reader decodes a CDR/PL_CDR payload written by Writer.
type Reader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func NewReader(buf []byte, e Endianness) *Reader {
	return &Reader{buf: buf, order: e.order()}
}

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Align(n int) {
	for r.pos%n != 0 && r.pos < len(r.buf) {
		r.pos++
	}
}

func (r *Reader) ReadByte() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	r.Align(4)
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	r.Align(8)
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("wire: zero-length CDR string")
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	r.Align(4)
	// drop the trailing NUL
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}
