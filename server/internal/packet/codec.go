package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// MaxStringLength bounds any length-prefixed string on the wire.
const MaxStringLength = math.MaxUint16

var ErrShortBuffer = errors.New("packet: short buffer")

// Writer appends big-endian fields to a buffer.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }
func (w *Writer) Len() int      { return w.buf.Len() }
func (w *Writer) Reset()        { w.buf.Reset() }

func (w *Writer) PutUint8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint8(1)
		return
	}
	w.PutUint8(0)
}

func (w *Writer) PutUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

func (w *Writer) PutFloat32(v float32) { w.PutUint32(math.Float32bits(v)) }

func (w *Writer) PutFloat64(v float64) { w.PutUint64(math.Float64bits(v)) }

// PutString writes a uint16 length prefix followed by the bytes of s.
// Strings longer than MaxStringLength bytes are cut at the last rune boundary
// that fits.
func (w *Writer) PutString(s string) {
	if len(s) > MaxStringLength {
		n := MaxStringLength
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	w.PutUint16(uint16(len(s)))
	w.buf.WriteString(s)
}

// PutBytes writes a uint32 length prefix followed by b.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf.Write(b)
}

// Reader consumes fields written by Writer. The first failure sticks; callers
// check Err once after reading a whole packet.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader { return &Reader{data: data} }

func (r *Reader) Err() error { return r.err }

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Remaining())
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) Uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) Bool() bool { return r.Uint8() != 0 }

func (r *Reader) Uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *Reader) Int64() int64 { return int64(r.Uint64()) }

func (r *Reader) Float32() float32 { return math.Float32frombits(r.Uint32()) }

func (r *Reader) Float64() float64 { return math.Float64frombits(r.Uint64()) }

func (r *Reader) String() string {
	n := int(r.Uint16())
	return string(r.take(n))
}

func (r *Reader) Bytes() []byte {
	n := int(r.Uint32())
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// WriteFrame writes payload preceded by its 4-byte big-endian length.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}
