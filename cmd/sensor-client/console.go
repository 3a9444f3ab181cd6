package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/client"
	"github.com/switches/sensorbridge/pkg/sensor"
)

// Console runs sensor manager commands against one bridge connection.
type Console struct {
	sm     *client.SensorManager
	cancel func(context.Context, *client.Stream) error
	out    io.Writer

	mu      sync.Mutex
	streams map[string]*client.Stream
	// opens holds the command line that opened each continuous or hot-plug
	// stream, for Restore.
	opens map[string]string
	wg    sync.WaitGroup
}

// NewConsole creates a console on conn writing to out.
func NewConsole(conn *client.Conn, out io.Writer) *Console {
	return newConsole(conn.SensorManager(), conn.Cancel, out)
}

func newConsole(sm *client.SensorManager, cancel func(context.Context, *client.Stream) error, out io.Writer) *Console {
	return &Console{
		sm:      sm,
		cancel:  cancel,
		out:     out,
		streams: make(map[string]*client.Stream),
		opens:   make(map[string]string),
	}
}

// Execute runs one command line. It returns true for quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "version":
		err = c.cmdVersion(ctx)
	case "caps":
		err = c.cmdCaps(ctx)
	case "list", "ls":
		err = c.cmdList(ctx, args, false)
	case "dynamic":
		err = c.cmdList(ctx, args, true)
	case "default":
		err = c.cmdDefault(ctx, args)
	case "listen":
		err = c.cmdListen(ctx, line, args)
	case "trigger":
		err = c.cmdTrigger(ctx, args)
	case "hotplug":
		err = c.cmdHotplug(ctx, line)
	case "streams":
		c.cmdStreams()
	case "cancel":
		err = c.cmdCancel(ctx, args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

// Close cancels every open stream and waits for the printers to finish.
func (c *Console) Close(ctx context.Context) {
	for _, s := range c.snapshot() {
		_ = c.cancel(ctx, s)
	}
	c.wg.Wait()
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Sensor Client Commands:
  Queries:
    version                   - Platform version
    caps                      - Negotiated capabilities
    list [type]               - Static sensors (default: all)
    dynamic [type]            - Connected dynamic sensors
    default <type> [wakeup]   - Default sensor for a type

  Streams:
    listen <type> [delay]     - Stream readings (fastest, game, ui, normal or µs)
    trigger <type>            - Wait for one trigger event
    hotplug                   - Stream dynamic sensor connect/disconnect
    streams                   - List open streams
    cancel <channel|all>      - Cancel a stream

  quit                        - Disconnect`)
}

func (c *Console) cmdVersion(ctx context.Context) error {
	v, err := c.sm.PlatformVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, v)
	return nil
}

func (c *Console) cmdCaps(ctx context.Context) error {
	caps, err := c.sm.Capabilities(ctx)
	if err != nil {
		return err
	}
	c.printRecord("", caps)
	return nil
}

func (c *Console) cmdList(ctx context.Context, args []string, dynamic bool) error {
	t := sensor.TypeAll
	if len(args) > 0 {
		var err error
		if t, err = sensor.ParseType(args[0]); err != nil {
			return err
		}
	}

	var list []sensor.Record
	var err error
	if dynamic {
		list, err = c.sm.DynamicSensorList(ctx, t)
	} else {
		list, err = c.sm.SensorList(ctx, t)
	}
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(c.out, "No sensors")
		return nil
	}
	for _, r := range list {
		fmt.Fprintf(c.out, "  %-32v %-40v vendor=%v\n", r[sensor.FieldName], r[sensor.FieldStringType], r[sensor.FieldVendor])
	}
	return nil
}

func (c *Console) cmdDefault(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: default <type> [wakeup]")
	}
	t, err := sensor.ParseType(args[0])
	if err != nil {
		return err
	}

	var r sensor.Record
	if len(args) > 1 && strings.EqualFold(args[1], "wakeup") {
		r, err = c.sm.DefaultSensorWakeUp(ctx, t, true)
	} else {
		r, err = c.sm.DefaultSensor(ctx, t)
	}
	if err != nil {
		return err
	}
	if len(r) == 0 {
		fmt.Fprintf(c.out, "No default sensor for %s\n", t)
		return nil
	}
	c.printRecord("", r)
	return nil
}

func (c *Console) cmdListen(ctx context.Context, line string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: listen <type> [delay]")
	}
	t, err := sensor.ParseType(args[0])
	if err != nil {
		return err
	}
	delay := sensor.DelayNormal
	if len(args) > 1 {
		if delay, err = sensor.ParseDelay(args[1]); err != nil {
			return err
		}
	}
	s, err := c.sm.ListenSensor(ctx, t, delay)
	if err != nil {
		return err
	}
	c.track(s)
	c.remember(s, line)
	return nil
}

func (c *Console) cmdTrigger(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: trigger <type>")
	}
	t, err := sensor.ParseType(args[0])
	if err != nil {
		return err
	}
	s, err := c.sm.ListenTrigger(ctx, t)
	if err != nil {
		return err
	}
	c.track(s)
	return nil
}

func (c *Console) cmdHotplug(ctx context.Context, line string) error {
	s, err := c.sm.ListenDynamicSensors(ctx)
	if err != nil {
		return err
	}
	c.track(s)
	c.remember(s, line)
	return nil
}

func (c *Console) cmdStreams() {
	streams := c.snapshot()
	if len(streams) == 0 {
		fmt.Fprintln(c.out, "No open streams")
		return
	}
	for _, s := range streams {
		fmt.Fprintf(c.out, "  %s (dropped %d)\n", s.Channel(), s.Dropped())
	}
}

func (c *Console) cmdCancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cancel <channel|all>")
	}
	var targets []*client.Stream
	for _, s := range c.snapshot() {
		if args[0] == "all" || s.Channel() == args[0] || strings.HasSuffix(s.Channel(), "/"+args[0]) {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no open stream matches %q", args[0])
	}
	for _, s := range targets {
		c.mu.Lock()
		delete(c.opens, s.Channel())
		c.mu.Unlock()
		if err := c.cancel(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Restore reopens the continuous and hot-plug streams that were open on
// prev when its connection was lost. Trigger streams are not restored.
func (c *Console) Restore(ctx context.Context, prev *Console) {
	prev.mu.Lock()
	lines := make([]string, 0, len(prev.opens))
	for _, line := range prev.opens {
		lines = append(lines, line)
	}
	prev.mu.Unlock()
	sort.Strings(lines)

	for _, line := range lines {
		fmt.Fprintf(c.out, "Restoring: %s\n", line)
		c.Execute(ctx, line)
	}
}

func (c *Console) remember(s *client.Stream, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens[s.Channel()] = strings.TrimSpace(line)
}

// track prints the events of s until it ends.
func (c *Console) track(s *client.Stream) {
	c.mu.Lock()
	c.streams[s.Channel()] = s
	c.mu.Unlock()
	fmt.Fprintf(c.out, "Listening on %s\n", s.Channel())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for r := range s.Events() {
			c.printRecord(s.Channel(), r)
		}

		c.mu.Lock()
		if c.streams[s.Channel()] == s {
			delete(c.streams, s.Channel())
		}
		c.mu.Unlock()

		if err := s.Err(); err != nil {
			fmt.Fprintf(c.out, "[%s] ended: %v\n", shortChannel(s.Channel()), err)
		} else {
			fmt.Fprintf(c.out, "[%s] ended\n", shortChannel(s.Channel()))
		}
	}()
}

func (c *Console) snapshot() []*client.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	streams := make([]*client.Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].Channel() < streams[j].Channel() })
	return streams
}

// printRecord prints r with sorted keys. Nested sensor records are
// reduced to their name.
func (c *Console) printRecord(channel string, r sensor.Record) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	if channel != "" {
		fmt.Fprintf(&b, "[%s] %s", shortChannel(channel), time.Now().Format("15:04:05.000"))
	}
	for _, k := range keys {
		v := r[k]
		if nested, ok := v.(map[string]any); ok {
			v = nested[sensor.FieldName]
		}
		if channel == "" {
			fmt.Fprintf(&b, "  %-24s %v\n", k, v)
		} else {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
	}
	fmt.Fprintln(c.out, strings.TrimRight(b.String(), "\n"))
}

// shortChannel drops the channel prefix, leaving "<kind>/<type>".
func shortChannel(name string) string {
	parts := strings.Split(name, "/")
	if len(parts) >= 2 {
		return strings.Join(parts[len(parts)-2:], "/")
	}
	return name
}
