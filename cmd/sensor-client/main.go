// Command sensor-client connects to a sensor bridge and streams readings.
//
// Usage:
//
//	sensor-client [flags] [host:port]
//
// Without an address the client browses mDNS and connects to the bridge
// named by -name, or to the first bridge found.
//
// Flags:
//
//	-discover             List bridges on the network and exit
//	-name string          mDNS instance name to connect to
//	-interface string     Network interface for mDNS
//	-timeout duration     Call and discovery timeout (default 10s)
//	-e string             Run ';'-separated commands and exit
//	-protocol-log string  Write protocol events to a CBOR log file
//	-log-level string     Log level: debug, info, warn, error (default "warn")
//	-tls                  Connect with TLS
//	-fingerprint string   Pin the bridge certificate fingerprint (implies -tls)
//	-reconnect            Reconnect and restore streams when the bridge goes away
//
// Examples:
//
//	# Find bridges
//	sensor-client -discover
//
//	# Interactive session with a known bridge
//	sensor-client 192.168.1.20:47420
//
//	# Print the sensor list and exit
//	sensor-client -e "version; list"
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/switches/sensorbridge/pkg/cert"
	"github.com/switches/sensorbridge/pkg/client"
	"github.com/switches/sensorbridge/pkg/discovery"
	sblog "github.com/switches/sensorbridge/pkg/log"
)

var (
	discover    = flag.Bool("discover", false, "List bridges on the network and exit")
	name        = flag.String("name", "", "mDNS instance name to connect to")
	iface       = flag.String("interface", "", "Network interface for mDNS (default: all)")
	timeout     = flag.Duration("timeout", 10*time.Second, "Call and discovery timeout")
	exec        = flag.String("e", "", "Run ';'-separated commands and exit")
	protocolLog = flag.String("protocol-log", "", "Write protocol events to a CBOR log file")
	logLevel    = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	useTLS      = flag.Bool("tls", false, "Connect with TLS")
	pin         = flag.String("fingerprint", "", "Accept only the bridge certificate with this SHA-256 fingerprint (implies -tls)")
	reconnect   = flag.Bool("reconnect", false, "Reconnect and restore streams when the bridge goes away")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sensor-client [flags] [host:port]\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(address string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", *logLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	browserCfg := discovery.DefaultBrowserConfig()
	browserCfg.Interface = *iface
	browserCfg.BrowseTimeout = *timeout

	if *discover {
		return listBridges(ctx, discovery.NewMDNSBrowser(browserCfg), os.Stdout)
	}

	if address == "" {
		bridge, err := findBridge(ctx, discovery.NewMDNSBrowser(browserCfg), *name)
		if err != nil {
			return err
		}
		address = bridge.Address()
		fmt.Printf("Found %s (%s, API %d) at %s\n", bridge.InstanceName, bridge.Platform, bridge.APILevel, address)
	}

	// Interactive sessions print logs through readline.
	var rl *readline.Instance
	var out io.Writer = os.Stdout
	if *exec == "" {
		var err error
		rl, err = readline.NewEx(&readline.Config{
			Prompt:          "sensors> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()
		out = rl.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	cfg := client.Config{
		CallTimeout: *timeout,
		Logger:      logger,
	}
	if *protocolLog != "" {
		fileLogger, err := sblog.NewFileLogger(*protocolLog)
		if err != nil {
			return fmt.Errorf("failed to create protocol logger: %w", err)
		}
		defer fileLogger.Close()
		cfg.ProtocolLogger = fileLogger
	}

	if *useTLS || *pin != "" {
		cfg.TLSConfig = cert.PinnedClientConfig(*pin)
	}

	conn, err := client.Dial(ctx, address, cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", address, err)
	}

	if *exec != "" {
		defer conn.Close()
		console := NewConsole(conn, out)
		defer console.Close(context.Background())
		for _, line := range strings.Split(*exec, ";") {
			if console.Execute(ctx, line) {
				break
			}
		}
		return nil
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return
			}
			lines <- line
		}
	}()

	var prev *Console
	for {
		console := NewConsole(conn, out)
		fmt.Fprintf(out, "Connected to %s (type 'help' for commands)\n", conn.RemoteAddr())
		if prev != nil {
			console.Restore(ctx, prev)
		}

		lost := interact(ctx, conn, console, lines)
		console.Close(context.Background())
		_ = conn.Close()
		if !lost || !*reconnect {
			return nil
		}

		fmt.Fprintln(out, "Bridge closed the connection, reconnecting...")
		conn, err = client.DialRetry(ctx, address, cfg, client.NewBackoff(client.BackoffConfig{Jitter: client.JitterFactor}),
			func(attempt int, delay time.Duration, err error) {
				logger.Info("reconnect failed", "attempt", attempt, "retry_in", delay, "error", err)
			})
		if err != nil {
			return nil
		}
		prev = console
	}
}

// interact runs console commands until quit or until the connection is
// lost. It reports whether the connection was lost.
func interact(ctx context.Context, conn *client.Conn, console *Console, lines <-chan string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-conn.Done():
			return true
		case line, ok := <-lines:
			if !ok || console.Execute(ctx, line) {
				return false
			}
		}
	}
}

// findBridge resolves a bridge by instance name, or the first one found.
func findBridge(ctx context.Context, b discovery.Browser, instance string) (*discovery.BridgeService, error) {
	defer b.Stop()
	fmt.Println("Browsing for sensor bridges...")
	bridge, err := b.Find(ctx, instance)
	if err != nil {
		if instance != "" {
			return nil, fmt.Errorf("bridge %q: %w", instance, err)
		}
		return nil, fmt.Errorf("no bridge found: %w", err)
	}
	return bridge, nil
}

func listBridges(ctx context.Context, b discovery.Browser, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	defer b.Stop()

	found, err := b.Browse(ctx)
	if err != nil {
		return err
	}
	n := 0
	for bridge := range found {
		n++
		fmt.Fprintf(out, "%d. %s\n", n, bridge.InstanceName)
		fmt.Fprintf(out, "   address:  %s\n", bridge.Address())
		fmt.Fprintf(out, "   platform: %s (API %d), %d sensors\n", bridge.Platform, bridge.APILevel, bridge.SensorCount)
		if len(bridge.Capabilities) > 0 {
			fmt.Fprintf(out, "   caps:     %s\n", strings.Join(bridge.Capabilities, ", "))
		}
	}
	if n == 0 {
		fmt.Fprintln(out, "No bridges found")
	}
	return nil
}
