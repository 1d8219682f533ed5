package motor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/shykaruu/motor/chat"
	"github.com/shykaruu/motor/jobs"
	"github.com/shykaruu/motor/mcproto"
)

// serveConn registers conn and runs its reader until the connection ends.
// Each frame becomes one job; the next frame is not read until that job
// finishes, so handshake steps for a client never overlap.
func (rt *Runtime) serveConn(conn Conn) {
	rt.metrics.accepted.Inc()
	c := rt.register(conn)
	if c == nil {
		conn.Close()
		return
	}
	defer c.Close()

	for {
		timeout := rt.opt.LoginTimeout
		if c.Proto() == ProtoPlay {
			timeout = 0
		}
		p, err := c.readPacket(timeout)
		if err != nil {
			if !c.isClosed() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.log.WithError(err).Debug("read")
				if c.Proto() == ProtoLogin {
					rt.metrics.logins.WithLabelValues(loginProtocol).Inc()
				}
			}
			return
		}

		done := make(chan struct{})
		rt.board.Add(jobs.Func(func(w jobs.Worker) {
			defer close(done)
			rt.dispatch(w, c, p)
		}))
		select {
		case <-done:
		case <-c.closed:
			return
		}
		if c.isClosed() {
			return
		}
	}
}

// dispatch runs one packet for c on worker w.
func (rt *Runtime) dispatch(w jobs.Worker, c *Client, p mcproto.Packet) {
	if c.isClosed() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			rt.metrics.jobPanics.Inc()
			c.log.WithField("worker", w.ID()).Errorf("packet handler panic: %v", r)
			c.Close()
		}
	}()

	var err error
	switch c.Proto() {
	case ProtoHandshaking:
		err = rt.handleHandshake(c, p)
	case ProtoStatus:
		err = rt.handleStatus(c, p)
	case ProtoLogin:
		err = rt.handleLogin(w, c, p)
		if err != nil {
			rt.metrics.logins.WithLabelValues(loginResult(err)).Inc()
		}
	case ProtoPlay:
		jobs.WithWorld(w, func() { err = rt.opt.Play.HandlePacket(w, c, p) })
	default:
		return
	}
	if err != nil {
		rt.drop(c, err)
	}
}

// drop ends c after err. A login error with a reason sends it first; the
// write is best effort since the connection closes either way.
func (rt *Runtime) drop(c *Client, err error) {
	if reason, ok := reasonOf(err); ok && c.Proto() == ProtoLogin {
		c.sendFinal(mcproto.LoginDisconnect{Reason: reason.JSON()})
	}
	if errors.Is(err, errFinished) {
		c.log.Debug("finished")
	} else {
		c.log.WithError(err).Info("disconnected")
	}
	c.Close()
}

func (rt *Runtime) handleHandshake(c *Client, p mcproto.Packet) error {
	if p.ID != mcproto.HandshakeID {
		return fmt.Errorf("%w: handshaking packet 0x%02x", ErrUnexpectedPacket, p.ID)
	}
	hs, err := mcproto.DecodeHandshake(p.Data)
	if err != nil {
		return err
	}
	c.Protocol = hs.Protocol
	switch hs.Next {
	case mcproto.NextStatus:
		c.setProto(ProtoStatus)
	case mcproto.NextLogin:
		c.setProto(ProtoLogin)
	default:
		return fmt.Errorf("%w: %d", ErrBadNextState, hs.Next)
	}
	return nil
}

// statusReply is the server list entry.
type statusReply struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description chat.Component `json:"description"`
}

func (rt *Runtime) statusJSON() string {
	var s statusReply
	s.Version.Name = rt.opt.VersionName
	s.Version.Protocol = rt.opt.Protocol
	s.Players.Max = rt.opt.MaxPlayers
	s.Players.Online = rt.Online()
	s.Description = chat.Text(rt.opt.MOTD)
	b, err := json.Marshal(s)
	if err != nil {
		panic("motor: marshal status: " + err.Error())
	}
	return string(b)
}

func (rt *Runtime) handleStatus(c *Client, p mcproto.Packet) error {
	switch p.ID {
	case mcproto.StatusRequestID:
		if len(p.Data) != 0 {
			return mcproto.ErrTrailingData
		}
		return c.Send(mcproto.StatusResponse{JSON: rt.statusJSON()})
	case mcproto.PingID:
		ping, err := mcproto.DecodePing(p.Data)
		if err != nil {
			return err
		}
		if err := c.Send(mcproto.Pong(ping)); err != nil {
			return err
		}
		return errFinished
	default:
		return fmt.Errorf("%w: status packet 0x%02x", ErrUnexpectedPacket, p.ID)
	}
}
