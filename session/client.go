// Package session verifies a login against the session server.
//
// One HTTP client is shared by the whole process and guarded by one lock,
// so at most one verification is in flight at any time. Throughput of
// online logins is bounded by the latency of a single request.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the public session server.
const DefaultBaseURL = "https://sessionserver.mojang.com"

const (
	defaultTimeout = 10 * time.Second
	maxBody        = 1 << 20
)

var (
	ErrTransport = errors.New("session: transport failure")
	ErrClosed    = errors.New("session: client closed")
)

// StatusError is returned when the server answers with anything but 200.
// The session server answers 204 for a login it has no record of.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("session: server returned %d", e.Code)
}

// Client calls the hasJoined endpoint.
type Client struct {
	base    string
	timeout time.Duration

	mu     sync.Mutex
	http   *http.Client
	closed bool
}

// New returns a client for baseURL. An empty baseURL selects
// DefaultBaseURL and a zero timeout selects ten seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// build creates the shared HTTP client. Only IPv4 is dialed.
func (c *Client) build() *http.Client {
	d := &net.Dialer{Timeout: c.timeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp4", addr)
		},
		MaxIdleConns:        1,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: c.timeout,
	}
	return &http.Client{Transport: tr, Timeout: c.timeout}
}

// HasJoined asks whether username joined with serverHash and returns the
// verified profile. The call holds the client lock for its whole duration.
func (c *Client) HasJoined(ctx context.Context, username, serverHash string) (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Profile{}, ErrClosed
	}
	if c.http == nil {
		c.http = c.build()
	}

	q := url.Values{}
	q.Set("username", username)
	q.Set("serverId", serverHash)
	u := c.base + "/session/minecraft/hasJoined?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
		return Profile{}, StatusError{Code: resp.StatusCode}
	}
	return ParseProfile(io.LimitReader(resp.Body, maxBody))
}

// Close releases idle connections. Later calls return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.http != nil {
		c.http.CloseIdleConnections()
		c.http = nil
	}
	return nil
}
