package motor

import (
	"context"
	"time"

	"github.com/apex/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/shykaruu/motor/crypt"
	"github.com/shykaruu/motor/jobs"
	"github.com/shykaruu/motor/mcproto"
	"github.com/shykaruu/motor/players"
	"github.com/shykaruu/motor/session"
)

// Protocol version spoken by this server.
const (
	DefaultProtocol    = 754
	DefaultVersionName = "1.16.5"
)

// Defaults applied by NewRuntime to zero option fields.
const (
	DefaultWorkers      = 4
	DefaultTickInterval = 50 * time.Millisecond
	DefaultSkipTicks    = 20
	DefaultMaxPlayers   = 20
	DefaultMOTD         = "A Minecraft server"

	// MaxEncryptedLength bounds each RSA field of the encryption
	// response; a 1024 bit modulus never produces more.
	MaxEncryptedLength = 128
)

// Authenticator verifies an online mode login. *session.Client is the
// production implementation.
type Authenticator interface {
	HasJoined(ctx context.Context, username, serverHash string) (session.Profile, error)
}

// PlayHandler takes over a client once its login completes. Join and
// HandlePacket run on a worker holding that worker's world lock. Leave
// runs on whatever goroutine closed the client.
type PlayHandler interface {
	Join(w jobs.Worker, c *Client)
	HandlePacket(w jobs.Worker, c *Client, p mcproto.Packet) error
	Leave(c *Client)
}

// Hooks are lifecycle callbacks for plugins.
type Hooks struct {
	OnEnable  func()
	OnDisable func()
}

// Options configures a Runtime.
type Options struct {
	Log log.Interface

	Protocol    int32
	VersionName string
	OnlineMode  bool
	MaxPlayers  int
	MOTD        string

	// KeyPair is the login RSA key. A fresh key is generated when nil.
	KeyPair *crypt.KeyPair

	// Session verifies online logins. Defaults to a session.Client for
	// SessionURL. If it implements io.Closer it is closed on shutdown.
	Session    Authenticator
	SessionURL string

	// Players records completed logins. The runtime closes it on shutdown.
	Players *players.Store

	Workers      int
	TickInterval time.Duration
	// SkipTicks is how many ticks the loop may fall behind before it
	// drops the backlog and warns.
	SkipTicks int
	Clock     Clock
	Tick      jobs.TickHook
	Play      PlayHandler
	Hooks     Hooks

	// LoginTimeout bounds each read before a client reaches play. Zero
	// disables it.
	LoginTimeout time.Duration

	// AcceptRate and AcceptBurst throttle new connections per remote IP.
	// A zero AcceptRate disables throttling.
	AcceptRate  rate.Limit
	AcceptBurst int

	// Registerer receives the runtime metrics. A private registry is used
	// when nil.
	Registerer prometheus.Registerer
}

func (opt *Options) resolve() error {
	if opt.Log == nil {
		opt.Log = log.Log
	}
	if opt.Protocol == 0 {
		opt.Protocol = DefaultProtocol
	}
	if opt.VersionName == "" {
		opt.VersionName = DefaultVersionName
	}
	if opt.MaxPlayers <= 0 {
		opt.MaxPlayers = DefaultMaxPlayers
	}
	if opt.MOTD == "" {
		opt.MOTD = DefaultMOTD
	}
	if opt.KeyPair == nil {
		kp, err := crypt.GenerateKeyPair()
		if err != nil {
			return err
		}
		opt.KeyPair = kp
	}
	if opt.Session == nil {
		opt.Session = session.New(opt.SessionURL, 0)
	}
	if opt.Workers <= 0 {
		opt.Workers = DefaultWorkers
	}
	if opt.TickInterval <= 0 {
		opt.TickInterval = DefaultTickInterval
	}
	if opt.SkipTicks <= 0 {
		opt.SkipTicks = DefaultSkipTicks
	}
	if opt.Clock == nil {
		opt.Clock = systemClock{}
	}
	if opt.Tick == nil {
		opt.Tick = jobs.NewScheduler()
	}
	if opt.Play == nil {
		opt.Play = idlePlay{}
	}
	if opt.AcceptBurst <= 0 {
		opt.AcceptBurst = 1
	}
	if opt.Registerer == nil {
		opt.Registerer = prometheus.NewRegistry()
	}
	return nil
}

// idlePlay accepts play clients and ignores what they send.
type idlePlay struct{}

func (idlePlay) Join(jobs.Worker, *Client)                                {}
func (idlePlay) HandlePacket(jobs.Worker, *Client, mcproto.Packet) error { return nil }
func (idlePlay) Leave(*Client)                                            {}
