package mcproto

import (
	"fmt"
)

// Handshaking state.
const (
	HandshakeID int32 = 0x00
)

// Status state.
const (
	StatusRequestID  int32 = 0x00
	StatusResponseID int32 = 0x00
	PingID           int32 = 0x01
	PongID           int32 = 0x01
)

// Login state, serverbound.
const (
	LoginStartID          int32 = 0x00
	EncryptionResponseID  int32 = 0x01
	LoginPluginResponseID int32 = 0x02
)

// Login state, clientbound.
const (
	LoginDisconnectID   int32 = 0x00
	EncryptionRequestID int32 = 0x01
	LoginSuccessID      int32 = 0x02
	SetCompressionID    int32 = 0x03 // Reserved; compression is never enabled.
)

// Field bounds.
const (
	MaxUsername = 16
	MaxAddress  = 255
	MaxChat     = 262144
)

// Next state requested by a Handshake.
const (
	NextStatus int32 = 1
	NextLogin  int32 = 2
)

// Handshake is the first packet of every connection.
type Handshake struct {
	Protocol int32
	Address  string
	Port     uint16
	Next     int32
}

func (Handshake) PacketID() int32 { return HandshakeID }

func (p Handshake) Encode(w *Writer) {
	w.VarInt(p.Protocol)
	w.String(p.Address)
	w.Uint16(p.Port)
	w.VarInt(p.Next)
}

// DecodeHandshake parses a Handshake body.
func DecodeHandshake(body []byte) (Handshake, error) {
	var (
		p   Handshake
		err error
	)
	r := NewReader(body)
	if p.Protocol, err = r.VarInt(); err != nil {
		return p, fmt.Errorf("handshake protocol: %w", err)
	}
	if p.Address, err = r.String("address", MaxAddress); err != nil {
		return p, fmt.Errorf("handshake address: %w", err)
	}
	if p.Port, err = r.Uint16(); err != nil {
		return p, fmt.Errorf("handshake port: %w", err)
	}
	if p.Next, err = r.VarInt(); err != nil {
		return p, fmt.Errorf("handshake next state: %w", err)
	}
	return p, r.Done()
}

// LoginStart carries the name the client wants to log in with.
type LoginStart struct {
	Username string
}

func (LoginStart) PacketID() int32 { return LoginStartID }

func (p LoginStart) Encode(w *Writer) { w.String(p.Username) }

// DecodeLoginStart parses a LoginStart body. Newer clients append extra
// fields after the name; those are ignored.
func DecodeLoginStart(body []byte) (LoginStart, error) {
	r := NewReader(body)
	name, err := r.String("username", MaxUsername)
	if err != nil {
		return LoginStart{}, fmt.Errorf("login start: %w", err)
	}
	return LoginStart{Username: name}, nil
}

// EncryptionRequest asks the client to encrypt a shared secret with
// PublicKey and return it along with VerifyToken.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (EncryptionRequest) PacketID() int32 { return EncryptionRequestID }

func (p EncryptionRequest) Encode(w *Writer) {
	w.String(p.ServerID)
	w.ByteArray(p.PublicKey)
	w.ByteArray(p.VerifyToken)
}

// DecodeEncryptionRequest parses an EncryptionRequest body.
func DecodeEncryptionRequest(body []byte) (EncryptionRequest, error) {
	var (
		p   EncryptionRequest
		err error
	)
	r := NewReader(body)
	if p.ServerID, err = r.String("server id", 20); err != nil {
		return p, err
	}
	if p.PublicKey, err = r.ByteArray("public key", MaxFrame); err != nil {
		return p, err
	}
	if p.VerifyToken, err = r.ByteArray("verify token", MaxFrame); err != nil {
		return p, err
	}
	return p, r.Done()
}

// EncryptionResponse carries the RSA encrypted shared secret and verify
// token.
type EncryptionResponse struct {
	Secret []byte
	Token  []byte
}

func (EncryptionResponse) PacketID() int32 { return EncryptionResponseID }

func (p EncryptionResponse) Encode(w *Writer) {
	w.ByteArray(p.Secret)
	w.ByteArray(p.Token)
}

// DecodeEncryptionResponse parses an EncryptionResponse body. Each
// declared length must be at most max; a larger value is reported as a
// LengthError before any copy happens.
func DecodeEncryptionResponse(body []byte, max int) (EncryptionResponse, error) {
	var (
		p   EncryptionResponse
		err error
	)
	r := NewReader(body)
	if p.Secret, err = r.ByteArray("shared secret", max); err != nil {
		return p, err
	}
	if p.Token, err = r.ByteArray("verify token", max); err != nil {
		return p, err
	}
	return p, r.Done()
}

// LoginSuccess completes the login.
type LoginSuccess struct {
	UUID     [16]byte
	Username string
}

func (LoginSuccess) PacketID() int32 { return LoginSuccessID }

func (p LoginSuccess) Encode(w *Writer) {
	w.Raw(p.UUID[:])
	w.String(p.Username)
}

// DecodeLoginSuccess parses a LoginSuccess body.
func DecodeLoginSuccess(body []byte) (LoginSuccess, error) {
	var p LoginSuccess
	r := NewReader(body)
	id, err := r.take(16)
	if err != nil {
		return p, err
	}
	copy(p.UUID[:], id)
	if p.Username, err = r.String("username", MaxUsername); err != nil {
		return p, err
	}
	return p, r.Done()
}

// LoginDisconnect closes a connection in the login state. Reason is a JSON
// chat component.
type LoginDisconnect struct {
	Reason string
}

func (LoginDisconnect) PacketID() int32 { return LoginDisconnectID }

func (p LoginDisconnect) Encode(w *Writer) { w.String(p.Reason) }

// DecodeLoginDisconnect parses a LoginDisconnect body.
func DecodeLoginDisconnect(body []byte) (LoginDisconnect, error) {
	r := NewReader(body)
	s, err := r.String("reason", MaxChat)
	if err != nil {
		return LoginDisconnect{}, err
	}
	return LoginDisconnect{Reason: s}, r.Done()
}

// StatusRequest asks for the server list entry.
type StatusRequest struct{}

func (StatusRequest) PacketID() int32 { return StatusRequestID }
func (StatusRequest) Encode(*Writer)  {}

// StatusResponse holds the JSON server list entry.
type StatusResponse struct {
	JSON string
}

func (StatusResponse) PacketID() int32 { return StatusResponseID }

func (p StatusResponse) Encode(w *Writer) { w.String(p.JSON) }

// DecodeStatusResponse parses a StatusResponse body.
func DecodeStatusResponse(body []byte) (StatusResponse, error) {
	r := NewReader(body)
	s, err := r.String("status", MaxChat)
	if err != nil {
		return StatusResponse{}, err
	}
	return StatusResponse{JSON: s}, r.Done()
}

// Ping carries an opaque payload the server echoes back as Pong.
type Ping struct {
	Payload int64
}

func (Ping) PacketID() int32 { return PingID }

func (p Ping) Encode(w *Writer) { w.Int64(p.Payload) }

// DecodePing parses a Ping or Pong body.
func DecodePing(body []byte) (Ping, error) {
	r := NewReader(body)
	v, err := r.Int64()
	if err != nil {
		return Ping{}, err
	}
	return Ping{Payload: v}, r.Done()
}

// Pong echoes a Ping payload.
type Pong Ping

func (Pong) PacketID() int32 { return PongID }

func (p Pong) Encode(w *Writer) { w.Int64(p.Payload) }
