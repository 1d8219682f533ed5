package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"

	"github.com/shykaruu/motor"
	"github.com/shykaruu/motor/crypt"
	"github.com/shykaruu/motor/keystore"
	"github.com/shykaruu/motor/players"
)

// ServerOptions configures the server mode.
type ServerOptions struct {
	ListenAddr   string
	QUICAddr     string
	DataDir      string
	OnlineMode   bool
	SessionURL   string
	Workers      int
	TickInterval time.Duration
	SkipTicks    int
	LoginTimeout time.Duration
	AcceptRate   float64
	AcceptBurst  int
	MOTD         string
	MaxPlayers   int
	MetricsAddr  string
	DebugLocks   bool
	LogLevel     string
	LogJSON      bool
}

// ServerResult contains information about the running server.
type ServerResult struct {
	Addr        string // TCP listen address.
	QUICAddr    string
	Fingerprint string
}

// RunServer starts the server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	return RunServerWithResult(ctx, opts, nil)
}

// RunServerWithResult starts the server and optionally reports startup info.
func RunServerWithResult(ctx context.Context, opts *ServerOptions, resultCh chan<- *ServerResult) error {
	logger, err := newLogger(opts)
	if err != nil {
		return err
	}
	deadlock.Opts.Disable = !opts.DebugLocks

	kp, created, err := loadKeyPair(opts.DataDir)
	if err != nil {
		return err
	}
	if created {
		logger.WithField("key", kp.Fingerprint()).Info("generated login keypair")
	}

	store, err := players.Open(filepath.Join(opts.DataDir, "players.db"))
	if err != nil {
		return fmt.Errorf("open player store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rt, err := motor.NewRuntime(motor.Options{
		Log:          logger,
		OnlineMode:   opts.OnlineMode,
		MaxPlayers:   opts.MaxPlayers,
		MOTD:         opts.MOTD,
		KeyPair:      kp,
		SessionURL:   opts.SessionURL,
		Players:      store,
		Workers:      opts.Workers,
		TickInterval: opts.TickInterval,
		SkipTicks:    opts.SkipTicks,
		LoginTimeout: opts.LoginTimeout,
		AcceptRate:   rate.Limit(opts.AcceptRate),
		AcceptBurst:  opts.AcceptBurst,
		Registerer:   reg,
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("create runtime: %w", err)
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		rt.Shutdown()
		return fmt.Errorf("listen: %w", err)
	}
	result := &ServerResult{Addr: ln.Addr().String(), Fingerprint: kp.Fingerprint()}

	var pc net.PacketConn
	if opts.QUICAddr != "" {
		pc, err = net.ListenPacket("udp", opts.QUICAddr)
		if err != nil {
			ln.Close()
			rt.Shutdown()
			return fmt.Errorf("listen quic: %w", err)
		}
		defer pc.Close()
		result.QUICAddr = pc.LocalAddr().String()
	}

	if err := rt.Start(); err != nil {
		ln.Close()
		rt.Shutdown()
		return err
	}
	defer rt.Shutdown()

	if pc != nil {
		cert, err := motor.SelfSignedCert("localhost", time.Now(), 365*24*time.Hour)
		if err != nil {
			ln.Close()
			return fmt.Errorf("quic certificate: %w", err)
		}
		go func() {
			if err := rt.ServeQUIC(ctx, pc, motor.ServerTLSConfig(cert)); err != nil {
				logger.WithError(err).Error("quic listener")
			}
		}()
	}

	if opts.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics listener")
			}
		}()
		defer srv.Close()
	}

	if resultCh != nil {
		resultCh <- result
	}

	go func() {
		<-ctx.Done()
		rt.Shutdown()
	}()
	return rt.Serve(ln)
}

func newLogger(opts *ServerOptions) (*log.Logger, error) {
	level, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	var h log.Handler = cli.New(os.Stderr)
	if opts.LogJSON {
		h = json.New(os.Stderr)
	}
	return &log.Logger{Handler: h, Level: level}, nil
}

// loadKeyPair opens the key store under dataDir and loads or creates the
// login keypair.
func loadKeyPair(dataDir string) (*crypt.KeyPair, bool, error) {
	dir := filepath.Join(dataDir, "keys")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, false, fmt.Errorf("create key directory: %w", err)
	}
	ds, err := keystore.Open(dir)
	if err != nil {
		return nil, false, fmt.Errorf("open key store: %w", err)
	}
	return keystore.LoadKeyPair(ds)
}
