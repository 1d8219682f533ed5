package mcproto

import (
	"fmt"
	"io"
)

// Packet is a decoded frame: its id and the remaining body.
type Packet struct {
	ID   int32
	Data []byte
}

// Encoder is implemented by every outbound packet.
type Encoder interface {
	PacketID() int32
	Encode(w *Writer)
}

// ReadPacket reads one frame from r. Frames longer than max are rejected
// before the body is allocated.
func ReadPacket(r io.Reader, max int) (Packet, error) {
	n, err := ReadVarInt(r)
	if err != nil {
		return Packet{}, err
	}
	if n < 0 {
		return Packet{}, ErrNegative
	}
	if int(n) > max {
		return Packet{}, fmt.Errorf("%w: %d > %d", ErrTooLarge, n, max)
	}
	if n == 0 {
		return Packet{}, io.ErrUnexpectedEOF
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Packet{}, err
	}
	body := NewReader(frame)
	id, err := body.VarInt()
	if err != nil {
		return Packet{}, err
	}
	return Packet{ID: id, Data: frame[body.off:]}, nil
}

// Marshal returns the complete frame for p, length prefix included.
func Marshal(p Encoder) []byte {
	var body Writer
	body.VarInt(p.PacketID())
	p.Encode(&body)

	frame := make([]byte, 0, MaxVarIntLen+body.Len())
	frame = AppendVarInt(frame, int32(body.Len()))
	return append(frame, body.Bytes()...)
}

// WritePacket writes p to w as a single Write call.
func WritePacket(w io.Writer, p Encoder) error {
	_, err := w.Write(Marshal(p))
	return err
}
