package motor

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	quicKeepalive = 15 * time.Second
	quicLinger    = 5 * time.Second
)

// quicConn carries the framed protocol on the first bidirectional stream of
// a QUIC connection.
type quicConn struct {
	*quic.Stream
	conn *quic.Conn
}

func (q quicConn) RemoteAddr() net.Addr { return q.conn.RemoteAddr() }

// Close finishes the stream and closes the connection once the peer has
// gone or quicLinger passes, so queued data still reaches the peer.
func (q quicConn) Close() error {
	q.Stream.CancelRead(0)
	err := q.Stream.Close()
	go func() {
		t := time.NewTimer(quicLinger)
		defer t.Stop()
		select {
		case <-q.conn.Context().Done():
		case <-t.C:
		}
		q.conn.CloseWithError(0, "closed")
	}()
	return err
}

// ServeQUIC accepts QUIC connections on pc. Each connection opens one
// stream that behaves like a TCP connection.
func (rt *Runtime) ServeQUIC(ctx context.Context, pc net.PacketConn, tlsCfg *tls.Config) error {
	ln, err := quic.Listen(pc, tlsCfg, &quic.Config{
		MaxIncomingStreams: 1,
		KeepAlivePeriod:    quicKeepalive,
	})
	if err != nil {
		return err
	}
	if !rt.addListener(ln) {
		ln.Close()
		return ErrStopping
	}
	rt.log.WithField("addr", pc.LocalAddr().String()).Info("listening (quic)")

	for {
		qc, err := ln.Accept(ctx)
		if err != nil {
			if rt.stopping() || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !rt.limiter.allow(hostOf(qc.RemoteAddr())) {
			rt.metrics.throttled.Inc()
			qc.CloseWithError(1, "throttled")
			continue
		}
		go rt.acceptStream(ctx, qc)
	}
}

func (rt *Runtime) acceptStream(ctx context.Context, qc *quic.Conn) {
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	st, err := qc.AcceptStream(sctx)
	if err != nil {
		rt.log.WithFields(connFields(qc.RemoteAddr(), "quic")).WithError(err).Debug("accept stream")
		qc.CloseWithError(2, "no stream")
		return
	}
	rt.serveConn(quicConn{Stream: st, conn: qc})
}
