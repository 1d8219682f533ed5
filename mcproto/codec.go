// Package mcproto encodes and decodes the framed packets exchanged before a
// client reaches the play state: handshake, status and login.
//
// Every frame on the wire is a varint length followed by a varint packet id
// and the packet body. Numeric fields use network byte order.
package mcproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Order is the byte order of every fixed-width field.
var Order = binary.BigEndian

const (
	// MaxVarIntLen is the longest encoding of a 32-bit varint.
	MaxVarIntLen = 5
	// MaxVarLongLen is the longest encoding of a 64-bit varint.
	MaxVarLongLen = 10

	// MaxFrame is the largest frame length representable in the three
	// byte length prefix the handshake and login states allow.
	MaxFrame = 1<<21 - 1
)

var (
	ErrVarIntTooLong = errors.New("mcproto: varint too long")
	ErrTooLarge      = errors.New("mcproto: frame too large")
	ErrNegative      = errors.New("mcproto: negative length")
	ErrInvalidString = errors.New("mcproto: invalid utf-8 string")
	ErrTrailingData  = errors.New("mcproto: trailing data after packet")
)

// LengthError reports a declared length that exceeds its bound.
type LengthError struct {
	Field string
	Got   int
	Max   int
}

func (e LengthError) Error() string {
	return fmt.Sprintf("mcproto: %s length %d exceeds %d", e.Field, e.Got, e.Max)
}

// AppendVarInt appends the varint encoding of v to b.
func AppendVarInt(b []byte, v int32) []byte {
	u := uint32(v)
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// AppendVarLong appends the varint encoding of v to b.
func AppendVarLong(b []byte, v int64) []byte {
	u := uint64(v)
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

// VarIntSize returns the encoded length of v.
func VarIntSize(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// ReadVarInt reads a varint one byte at a time. It never reads past the
// final byte of the varint, so the underlying reader may be swapped for a
// decrypting one immediately after a frame.
func ReadVarInt(r io.Reader) (int32, error) {
	var (
		result uint32
		one    [1]byte
	)
	for i := 0; i < MaxVarIntLen; i++ {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		result |= uint32(one[0]&0x7f) << (7 * i)
		if one[0]&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, ErrVarIntTooLong
}

// Writer accumulates a packet body.
type Writer struct {
	buf []byte
}

// Bytes returns the encoded body.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of encoded bytes.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) VarInt(v int32)  { w.buf = AppendVarInt(w.buf, v) }
func (w *Writer) VarLong(v int64) { w.buf = AppendVarLong(w.buf, v) }
func (w *Writer) Raw(b []byte)    { w.buf = append(w.buf, b...) }

func (w *Writer) Uint16(v uint16) { w.buf = Order.AppendUint16(w.buf, v) }
func (w *Writer) Int32(v int32)   { w.buf = Order.AppendUint32(w.buf, uint32(v)) }
func (w *Writer) Int64(v int64)   { w.buf = Order.AppendUint64(w.buf, uint64(v)) }

// String writes a varint length prefixed UTF-8 string.
func (w *Writer) String(s string) {
	w.VarInt(int32(len(s)))
	w.buf = append(w.buf, s...)
}

// ByteArray writes a varint length prefixed byte slice.
func (w *Writer) ByteArray(b []byte) {
	w.VarInt(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// Reader decodes fields from a packet body.
type Reader struct {
	b   []byte
	off int
}

// NewReader returns a Reader over body.
func NewReader(body []byte) *Reader {
	return &Reader{b: body}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.b) - r.off }

// Done returns ErrTrailingData if any bytes remain unread.
func (r *Reader) Done() error {
	if r.Remaining() != 0 {
		return ErrTrailingData
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegative
	}
	if r.Remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.b[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) VarInt() (int32, error) {
	var result uint32
	for i := 0; i < MaxVarIntLen; i++ {
		if r.off >= len(r.b) {
			return 0, io.ErrUnexpectedEOF
		}
		c := r.b[r.off]
		r.off++
		result |= uint32(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return int32(result), nil
		}
	}
	return 0, ErrVarIntTooLong
}

func (r *Reader) VarLong() (int64, error) {
	var result uint64
	for i := 0; i < MaxVarLongLen; i++ {
		if r.off >= len(r.b) {
			return 0, io.ErrUnexpectedEOF
		}
		c := r.b[r.off]
		r.off++
		result |= uint64(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return int64(result), nil
		}
	}
	return 0, ErrVarIntTooLong
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return Order.Uint16(b), nil
}

func (r *Reader) Int32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(Order.Uint32(b)), nil
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(Order.Uint64(b)), nil
}

// String reads a length prefixed string of at most maxRunes characters.
// The byte length is bounded before the body is sliced.
func (r *Reader) String(field string, maxRunes int) (string, error) {
	n, err := r.VarInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", ErrNegative
	}
	if int(n) > maxRunes*utf8.UTFMax {
		return "", LengthError{Field: field, Got: int(n), Max: maxRunes * utf8.UTFMax}
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidString
	}
	if c := utf8.RuneCount(b); c > maxRunes {
		return "", LengthError{Field: field, Got: c, Max: maxRunes}
	}
	return string(b), nil
}

// ByteArray reads a length prefixed byte slice. The declared length is
// checked against max before anything is copied.
func (r *Reader) ByteArray(field string, max int) ([]byte, error) {
	n, err := r.VarInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegative
	}
	if int(n) > max {
		return nil, LengthError{Field: field, Got: int(n), Max: max}
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
