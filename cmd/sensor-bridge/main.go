// Command sensor-bridge serves a sensor manager to remote clients.
//
// The bridge exposes the sensor framework of a simulated host over TCP/TLS
// with the CBOR channel protocol and advertises itself via mDNS.
//
// Usage:
//
//	sensor-bridge [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-listen string        Listen address (default ":47420")
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to a CBOR log file
//	-tls                  Serve TLS with a self-signed certificate
//	-cert-dir string      Keep the TLS identity in this directory
//	-advertise            Advertise the bridge via mDNS (default true)
//	-interface string     Network interface for mDNS
//	-name string          mDNS instance name
//	-idle-timeout dur     Close sessions without streams after this idle time
//	-simulate             Generate readings for registered listeners (default true)
//	-interactive          Start the interactive console
//
// Examples:
//
//	# Start with the default phone sensor set
//	sensor-bridge
//
//	# Start from a config file with protocol logging
//	sensor-bridge -config bridge.yaml -protocol-log /tmp/bridge.slog
//
//	# Drive sensor events by hand
//	sensor-bridge -simulate=false -interactive
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/switches/sensorbridge/cmd/sensor-bridge/interactive"
	"github.com/switches/sensorbridge/pkg/cert"
	"github.com/switches/sensorbridge/pkg/discovery"
	sblog "github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/sensor/simhost"
	"github.com/switches/sensorbridge/pkg/service"
)

// Options holds the command line settings.
type Options struct {
	ConfigFile  string
	Listen      string
	LogLevel    string
	ProtocolLog string
	TLS         bool
	CertDir     string
	Advertise   bool
	Interface   string
	Name        string
	IdleTimeout time.Duration
	Simulate    bool
	Interactive bool
}

func main() {
	opts, set := parseFlags(os.Args[1:])

	var fileCfg *FileConfig
	if opts.ConfigFile != "" {
		var err error
		fileCfg, err = loadFileConfig(opts.ConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	opts = mergeOptions(opts, set, fileCfg)

	if err := run(opts, fileCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses args and reports which flags were given explicitly.
func parseFlags(args []string) (Options, map[string]bool) {
	var opts Options
	fs := flag.NewFlagSet("sensor-bridge", flag.ExitOnError)
	fs.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	fs.StringVar(&opts.Listen, "listen", service.DefaultConfig().ListenAddress, "Listen address")
	fs.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write protocol events to a CBOR log file")
	fs.BoolVar(&opts.TLS, "tls", false, "Serve TLS with a self-signed certificate")
	fs.StringVar(&opts.CertDir, "cert-dir", "", "Keep the TLS identity in this directory (default: new identity per run)")
	fs.BoolVar(&opts.Advertise, "advertise", true, "Advertise the bridge via mDNS")
	fs.StringVar(&opts.Interface, "interface", "", "Network interface for mDNS (default: all)")
	fs.StringVar(&opts.Name, "name", "", "mDNS instance name")
	fs.DurationVar(&opts.IdleTimeout, "idle-timeout", 0, "Close sessions without streams after this idle time (0 disables)")
	fs.BoolVar(&opts.Simulate, "simulate", true, "Generate readings for registered listeners")
	fs.BoolVar(&opts.Interactive, "interactive", false, "Start the interactive console")
	_ = fs.Parse(args)

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return opts, set
}

// mergeOptions fills options not given on the command line from the file.
func mergeOptions(opts Options, set map[string]bool, fc *FileConfig) Options {
	if fc == nil {
		return opts
	}
	if !set["listen"] && fc.Listen != "" {
		opts.Listen = fc.Listen
	}
	if !set["log-level"] && fc.LogLevel != "" {
		opts.LogLevel = fc.LogLevel
	}
	if !set["protocol-log"] && fc.ProtocolLog != "" {
		opts.ProtocolLog = fc.ProtocolLog
	}
	if !set["tls"] && fc.TLS != nil {
		opts.TLS = *fc.TLS
	}
	if !set["cert-dir"] && fc.CertDir != "" {
		opts.CertDir = fc.CertDir
	}
	if !set["advertise"] && fc.Advertise != nil {
		opts.Advertise = *fc.Advertise
	}
	if !set["interface"] && fc.Interface != "" {
		opts.Interface = fc.Interface
	}
	if !set["name"] && fc.InstanceName != "" {
		opts.Name = fc.InstanceName
	}
	if !set["idle-timeout"] && fc.IdleTimeout != 0 {
		opts.IdleTimeout = fc.IdleTimeout
	}
	if !set["simulate"] && fc.Simulate != nil {
		opts.Simulate = *fc.Simulate
	}
	return opts
}

func run(opts Options, fileCfg *FileConfig) error {
	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		return err
	}

	hostCfg, err := fileCfg.hostConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	host := simhost.New(hostCfg)

	svcCfg := service.DefaultConfig()
	fileCfg.applyService(&svcCfg)
	svcCfg.ListenAddress = opts.Listen
	svcCfg.IdleTimeout = opts.IdleTimeout
	if opts.Name != "" {
		svcCfg.InstanceName = opts.Name
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The console owns the terminal, so logs go through its writer.
	var console *interactive.Console
	var logOut io.Writer = os.Stderr

	var identity *cert.Identity
	if opts.TLS {
		identity, err = loadIdentity(opts.CertDir)
		if err != nil {
			return fmt.Errorf("tls identity: %w", err)
		}
		svcCfg.TLSConfig = identity.ServerConfig()
	}

	svc, err := service.NewBridgeService(host, svcCfg)
	if err != nil {
		return err
	}
	if opts.Interactive {
		console, err = interactive.New(svc, host)
		if err != nil {
			return err
		}
		logOut = console.Stdout()
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))
	svc.SetLogger(logger)
	if identity != nil {
		logger.Info("serving TLS", "fingerprint", identity.Fingerprint())
	}

	if opts.ProtocolLog != "" {
		fileLogger, err := sblog.NewFileLogger(opts.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to create protocol logger: %w", err)
		}
		defer fileLogger.Close()
		var protocolLogger sblog.Logger = fileLogger
		if level <= slog.LevelDebug {
			protocolLogger = sblog.NewMultiLogger(fileLogger, sblog.NewSlogAdapter(logger))
		}
		svc.SetProtocolLogger(protocolLogger)
		logger.Info("protocol logging enabled", "path", opts.ProtocolLog)
	}

	if opts.Advertise {
		advCfg := discovery.DefaultAdvertiserConfig()
		advCfg.Interface = opts.Interface
		svc.SetAdvertiser(discovery.NewMDNSAdvertiser(advCfg))
	}

	svc.OnEvent(func(e service.Event) { logEvent(logger, e) })

	if opts.Simulate {
		host.Start(ctx)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	logger.Info("sensor bridge started",
		"addr", svc.Addr().String(),
		"platform", host.Platform().String(),
		"api_level", host.Platform().APILevel,
		"simulate", opts.Simulate)

	if console != nil {
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := svc.Stop(); err != nil {
		logger.Warn("error stopping bridge", "error", err)
	}
	cancel()
	host.Wait()
	return nil
}

// loadIdentity returns the persisted identity from dir, or a fresh one
// when dir is empty.
func loadIdentity(dir string) (*cert.Identity, error) {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if name, err := os.Hostname(); err == nil && name != "" {
		hosts = append([]string{name}, hosts...)
	}
	if dir == "" {
		return cert.Generate(hosts, cert.DefaultValidity)
	}
	id, _, err := cert.LoadOrCreate(dir, hosts)
	return id, err
}

func logEvent(logger *slog.Logger, e service.Event) {
	switch e.Type {
	case service.EventConnected:
		logger.Info("client connected", "conn_id", e.ConnectionID, "remote", e.RemoteAddr)
	case service.EventDisconnected:
		logger.Info("client disconnected", "conn_id", e.ConnectionID)
	case service.EventSessionReaped:
		logger.Info("idle session closed", "conn_id", e.ConnectionID)
	case service.EventAdvertised:
		logger.Info("advertising via mDNS")
	case service.EventError:
		logger.Warn("bridge error", "conn_id", e.ConnectionID, "error", e.Error)
	}
}
