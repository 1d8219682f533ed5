package motor

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"

	"github.com/shykaruu/motor/crypt"
	"github.com/shykaruu/motor/mcproto"
)

func TestMain(m *testing.M) {
	os.Setenv("QUIC_GO_DISABLE_RECEIVE_BUFFER_WARNING", "true")
	os.Exit(m.Run())
}

var (
	sharedKeyOnce sync.Once
	sharedKey     *crypt.KeyPair
	sharedKeyErr  error
)

func testKeyPair(t *testing.T) *crypt.KeyPair {
	t.Helper()
	sharedKeyOnce.Do(func() { sharedKey, sharedKeyErr = crypt.GenerateKeyPair() })
	if sharedKeyErr != nil {
		t.Fatal(sharedKeyErr)
	}
	return sharedKey
}

func testLogger() (*log.Logger, *memory.Handler) {
	h := memory.New()
	return &log.Logger{Handler: h, Level: log.DebugLevel}, h
}

// startRuntime starts a runtime on a loopback TCP listener and stops it
// when the test ends.
func startRuntime(t *testing.T, opt Options) (*Runtime, string) {
	t.Helper()
	if opt.Log == nil {
		opt.Log, _ = testLogger()
	}
	if opt.KeyPair == nil {
		opt.KeyPair = testKeyPair(t)
	}
	if opt.Session == nil {
		opt.Session = &fakeAuth{}
	}
	rt, err := NewRuntime(opt)
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Start(); err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go rt.Serve(ln)
	t.Cleanup(rt.Shutdown)
	return rt, ln.Addr().String()
}

// testConn is the client side of a connection.
type testConn struct {
	t    *testing.T
	conn io.ReadWriteCloser
	r    io.Reader
	w    io.Writer
}

func dialTest(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn, r: conn, w: conn}
}

func (tc *testConn) send(p mcproto.Encoder) {
	tc.t.Helper()
	if _, err := tc.w.Write(mcproto.Marshal(p)); err != nil {
		tc.t.Fatalf("send %T: %v", p, err)
	}
}

func (tc *testConn) recv() mcproto.Packet {
	tc.t.Helper()
	p, err := mcproto.ReadPacket(tc.r, mcproto.MaxFrame)
	if err != nil {
		tc.t.Fatalf("recv: %v", err)
	}
	return p
}

func (tc *testConn) expectClosed() {
	tc.t.Helper()
	p, err := mcproto.ReadPacket(tc.r, mcproto.MaxFrame)
	if err == nil {
		tc.t.Fatalf("expected connection close, got packet 0x%02x", p.ID)
	}
}

func (tc *testConn) encrypt(secret []byte) {
	tc.t.Helper()
	s, err := crypt.NewStreams(secret)
	if err != nil {
		tc.t.Fatal(err)
	}
	tc.r = cipher.StreamReader{S: s.Decrypt, R: tc.conn}
	tc.w = cipher.StreamWriter{S: s.Encrypt, W: tc.conn}
}

// rawPacket sends an arbitrary id and body.
type rawPacket struct {
	id   int32
	body []byte
}

func (p rawPacket) PacketID() int32            { return p.id }
func (p rawPacket) Encode(w *mcproto.Writer) { w.Raw(p.body) }

// startLogin sends the handshake and login start and returns the
// encryption request.
func (tc *testConn) startLogin(name string, protocol int32) mcproto.EncryptionRequest {
	tc.t.Helper()
	tc.send(mcproto.Handshake{Protocol: protocol, Address: "localhost", Port: 25565, Next: mcproto.NextLogin})
	tc.send(mcproto.LoginStart{Username: name})
	p := tc.recv()
	if p.ID != mcproto.EncryptionRequestID {
		tc.t.Fatalf("expected encryption request, got 0x%02x", p.ID)
	}
	req, err := mcproto.DecodeEncryptionRequest(p.Data)
	if err != nil {
		tc.t.Fatal(err)
	}
	return req
}

// encryptionResponse seals secret and token with the server key from req.
func encryptionResponse(t *testing.T, req mcproto.EncryptionRequest, secret, token []byte) mcproto.EncryptionResponse {
	t.Helper()
	k, err := x509.ParsePKIXPublicKey(req.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pub := k.(*rsa.PublicKey)
	es, err := rsa.EncryptPKCS1v15(rand.Reader, pub, secret)
	if err != nil {
		t.Fatal(err)
	}
	et, err := rsa.EncryptPKCS1v15(rand.Reader, pub, token)
	if err != nil {
		t.Fatal(err)
	}
	return mcproto.EncryptionResponse{Secret: es, Token: et}
}

func newSecret(t *testing.T) []byte {
	t.Helper()
	s := make([]byte, crypt.SecretLen)
	if _, err := rand.Read(s); err != nil {
		t.Fatal(err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
