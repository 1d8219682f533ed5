package motor

import (
	"context"
	"errors"
	"net"

	"github.com/apex/log"
)

// Serve accepts TCP connections on ln until ln is closed or the runtime
// shuts down. It returns nil after a shutdown.
func (rt *Runtime) Serve(ln net.Listener) error {
	if !rt.addListener(ln) {
		ln.Close()
		return ErrStopping
	}
	rt.log.WithField("addr", ln.Addr().String()).Info("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if rt.stopping() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !rt.limiter.allow(hostOf(conn.RemoteAddr())) {
			rt.metrics.throttled.Inc()
			rt.log.WithField("addr", conn.RemoteAddr().String()).Debug("connection throttled")
			conn.Close()
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		go rt.serveConn(conn)
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (rt *Runtime) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return rt.Serve(ln)
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func (rt *Runtime) addListener(l interface{ Close() error }) bool {
	rt.lnMu.Lock()
	defer rt.lnMu.Unlock()
	if rt.stopping() {
		return false
	}
	rt.listeners = append(rt.listeners, l)
	return true
}

func (rt *Runtime) closeListeners() {
	rt.lnMu.Lock()
	ls := rt.listeners
	rt.listeners = nil
	rt.lnMu.Unlock()
	for _, l := range ls {
		if err := l.Close(); err != nil {
			rt.log.WithError(err).Debug("close listener")
		}
	}
}

// connFields describes a connection before it has a client id.
func connFields(addr net.Addr, transport string) log.Fields {
	return log.Fields{"addr": addr.String(), "transport": transport}
}
