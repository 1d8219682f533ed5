package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	mode := os.Args[1]
	args := os.Args[2:]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var err error
	switch mode {
	case "server":
		err = runServerMode(ctx, args)
	case "keygen":
		err = runKeygenMode(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode: %s\n", mode)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.WithError(err).Fatal(mode)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: motor <mode> [options]

Modes:
  server   Run the server
  keygen   Create or show the stored login keypair

Run 'motor <mode> -h' for mode-specific options.
`)
}

func runServerMode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	opts := &ServerOptions{}
	fs.StringVar(&opts.ListenAddr, "listen", "0.0.0.0:25565", "TCP address to listen on")
	fs.StringVar(&opts.QUICAddr, "quic", "", "UDP address for the QUIC transport (disabled when empty)")
	fs.StringVar(&opts.DataDir, "data", "./data", "Data directory for keys and the player database")
	fs.BoolVar(&opts.OnlineMode, "online", false, "Verify logins with the session server")
	fs.StringVar(&opts.SessionURL, "session-url", "", "Session server base URL")
	fs.IntVar(&opts.Workers, "workers", 0, "Worker pool size")
	fs.DurationVar(&opts.TickInterval, "tick", 0, "Tick interval")
	fs.IntVar(&opts.SkipTicks, "skip", 0, "Ticks the loop may fall behind before it drops the backlog")
	fs.DurationVar(&opts.LoginTimeout, "login-timeout", 30*time.Second, "Read timeout before play (0 disables)")
	fs.Float64Var(&opts.AcceptRate, "accept-rate", 0, "New connections per second per address (0 disables)")
	fs.IntVar(&opts.AcceptBurst, "accept-burst", 4, "Connection burst per address")
	fs.StringVar(&opts.MOTD, "motd", "", "Server list description")
	fs.IntVar(&opts.MaxPlayers, "max-players", 0, "Player limit shown in the server list")
	fs.StringVar(&opts.MetricsAddr, "metrics", "", "Address for the Prometheus endpoint (disabled when empty)")
	fs.BoolVar(&opts.DebugLocks, "debug-locks", false, "Report world lock deadlocks")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level")
	fs.BoolVar(&opts.LogJSON, "log-json", false, "Write JSON logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return RunServer(ctx, opts)
}

func runKeygenMode(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	var dataDir string
	fs.StringVar(&dataDir, "data", "./data", "Data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kp, created, err := loadKeyPair(dataDir)
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("New keypair created\n")
	}
	fmt.Printf("Fingerprint: %s\n", kp.Fingerprint())
	return nil
}
