package motor

import (
	"crypto/cipher"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"

	"github.com/shykaruu/motor/crypt"
	"github.com/shykaruu/motor/mcproto"
	"github.com/shykaruu/motor/session"
	"github.com/shykaruu/motor/state"
)

// Conn is the transport under a client. *net.TCPConn and QUIC streams
// both satisfy it.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// finalWriteTimeout bounds the last message sent to a closing client.
const finalWriteTimeout = time.Second

// ProtoState is the protocol phase selected by the handshake.
type ProtoState int32

const (
	ProtoHandshaking ProtoState = iota
	ProtoStatus
	ProtoLogin
	ProtoPlay
	ProtoClosed
)

var protoNames = map[ProtoState]string{
	ProtoHandshaking: "handshaking",
	ProtoStatus:      "status",
	ProtoLogin:       "login",
	ProtoPlay:        "play",
	ProtoClosed:      "closed",
}

func (s ProtoState) String() string {
	if n, ok := protoNames[s]; ok {
		return n
	}
	return "invalid"
}

// LoginState is the progress of the login handshake.
type LoginState int

const (
	LoginAwaitingStart LoginState = iota
	LoginAwaitingEncryption
	LoginAuthenticating
	LoginReady
	LoginDisconnected
)

var loginNames = map[LoginState]string{
	LoginAwaitingStart:      "awaiting-login-start",
	LoginAwaitingEncryption: "awaiting-encryption-response",
	LoginAuthenticating:     "authenticating",
	LoginReady:              "ready",
	LoginDisconnected:       "disconnected",
}

func (s LoginState) String() string {
	if n, ok := loginNames[s]; ok {
		return n
	}
	return "invalid"
}

var loginTransitions = append([]state.Transition[LoginState]{
	{From: LoginAwaitingStart, To: LoginAwaitingEncryption, Name: "encryption-requested"},
	{From: LoginAwaitingEncryption, To: LoginAuthenticating, Name: "verify-online"},
	{From: LoginAwaitingEncryption, To: LoginReady, Name: "offline"},
	{From: LoginAuthenticating, To: LoginReady, Name: "verified"},
}, state.AnyTo(LoginDisconnected, "disconnect",
	LoginAwaitingStart, LoginAwaitingEncryption, LoginAuthenticating, LoginReady)...)

// Client is one connection. The worker running the client's current job
// owns its session fields; the runtime registry only indexes it.
type Client struct {
	ID uint32

	// Session fields, written only by the job handling the client.
	Protocol int32
	Username string
	UUID     uuid.UUID
	Textures *session.Textures

	verifyToken uint32
	secret      []byte

	conn  Conn
	log   log.Interface
	proto atomic.Int32
	login *state.Machine[LoginState]

	ioMu      sync.Mutex
	r         io.Reader
	w         io.Writer
	encrypted bool

	closeOnce sync.Once
	closed    chan struct{}
	onClose   func(*Client, ProtoState)
}

func newClient(id uint32, conn Conn, l log.Interface) *Client {
	c := &Client{
		ID:     id,
		conn:   conn,
		r:      conn,
		w:      conn,
		closed: make(chan struct{}),
	}
	c.log = l.WithFields(log.Fields{"client": id, "addr": conn.RemoteAddr().String()})
	c.login = state.NewForward(LoginAwaitingStart, loginTransitions, func(from, to LoginState, name string) {
		c.log.WithFields(log.Fields{"from": from, "to": to}).Debug(name)
	})
	return c
}

// Proto returns the protocol phase.
func (c *Client) Proto() ProtoState { return ProtoState(c.proto.Load()) }

func (c *Client) setProto(s ProtoState) { c.proto.Store(int32(s)) }

// LoginState returns the login progress.
func (c *Client) LoginState() LoginState { return c.login.Current() }

// Encrypted reports whether the stream cipher is active.
func (c *Client) Encrypted() bool {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	return c.encrypted
}

// RemoteAddr returns the peer address.
func (c *Client) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Log returns the client's logger.
func (c *Client) Log() log.Interface { return c.log }

// enableEncryption routes every later read and write through s. It runs
// inside a job while the reader goroutine waits for that job, so no frame
// is read half plain and half encrypted.
func (c *Client) enableEncryption(s crypt.Streams) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	c.r = cipher.StreamReader{S: s.Decrypt, R: c.conn}
	c.w = cipher.StreamWriter{S: s.Encrypt, W: c.conn}
	c.encrypted = true
}

func (c *Client) reader() io.Reader {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	return c.r
}

// Send writes one packet.
func (c *Client) Send(p mcproto.Encoder) error {
	frame := mcproto.Marshal(p)
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	_, err := c.w.Write(frame)
	return err
}

// sendFinal writes p before the connection is closed. The write is best
// effort and gives up after finalWriteTimeout.
func (c *Client) sendFinal(p mcproto.Encoder) {
	if d, ok := c.conn.(writeDeadliner); ok {
		d.SetWriteDeadline(time.Now().Add(finalWriteTimeout))
	}
	if err := c.Send(p); err != nil {
		c.log.WithError(err).Debug("final write")
	}
}

func (c *Client) readPacket(timeout time.Duration) (mcproto.Packet, error) {
	if d, ok := c.conn.(readDeadliner); ok {
		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		d.SetReadDeadline(deadline)
	}
	return mcproto.ReadPacket(c.reader(), mcproto.MaxFrame)
}

// Closed is closed once Close has run.
func (c *Client) Closed() <-chan struct{} { return c.closed }

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close ends the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		prev := ProtoState(c.proto.Swap(int32(ProtoClosed)))
		if c.login.CanTransitionTo(LoginDisconnected) {
			c.login.TransitionTo(LoginDisconnected)
		}
		err = c.conn.Close()
		close(c.closed)
		if c.onClose != nil {
			c.onClose(c, prev)
		}
	})
	return err
}
