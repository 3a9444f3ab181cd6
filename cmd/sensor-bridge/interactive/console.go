// Package interactive provides the interactive console of sensor-bridge.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/switches/sensorbridge/pkg/sensor"
	"github.com/switches/sensorbridge/pkg/sensor/simhost"
	"github.com/switches/sensorbridge/pkg/service"
)

// Console drives the simulated host while the bridge serves clients.
type Console struct {
	svc  *service.BridgeService
	host *simhost.Host
	rl   *readline.Instance
	out  io.Writer
}

// New creates a console with a readline prompt.
func New(svc *service.BridgeService, host *simhost.Host) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bridge> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{svc: svc, host: host, rl: rl, out: rl.Stdout()}
	svc.OnEvent(c.handleEvent)
	return c, nil
}

// newConsole creates a console without a terminal, writing to out.
func newConsole(svc *service.BridgeService, host *simhost.Host, out io.Writer) *Console {
	return &Console{svc: svc, host: host, out: out}
}

// Stdout returns a writer that coordinates with the prompt. Use it for log
// output.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns true for quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus()
	case "sensors", "ls":
		c.cmdSensors()
	case "emit", "e":
		c.cmdEmit(args)
	case "accuracy", "acc":
		c.cmdAccuracy(args)
	case "trigger", "t":
		c.cmdTrigger(args)
	case "plug":
		c.cmdPlug(args)
	case "unplug":
		c.cmdUnplug(args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Sensor Bridge Commands:
  Inspection:
    status                    - Show bridge, sessions and listeners
    sensors                   - List static and dynamic sensors

  Simulation:
    emit <type> <v...>        - Deliver a reading to continuous listeners
    accuracy <type> <n>       - Change sensor accuracy (-1..3)
    trigger <type> [v...]     - Fire a trigger sensor
    plug <id> <type> <name>   - Connect a dynamic sensor
    unplug <id>               - Disconnect a dynamic sensor

  quit                        - Stop the bridge

Types are codes (1), identifiers (android.sensor.light) or short names (light).`)
}

func (c *Console) handleEvent(e service.Event) {
	switch e.Type {
	case service.EventConnected:
		fmt.Fprintf(c.out, "[session] connected %s from %s\n", shortID(e.ConnectionID), e.RemoteAddr)
	case service.EventDisconnected:
		fmt.Fprintf(c.out, "[session] disconnected %s\n", shortID(e.ConnectionID))
	case service.EventSessionReaped:
		fmt.Fprintf(c.out, "[session] closed idle %s\n", shortID(e.ConnectionID))
	case service.EventError:
		fmt.Fprintf(c.out, "[error] %v\n", e.Error)
	}
}

func (c *Console) cmdStatus() {
	p := c.host.Platform()
	fmt.Fprintf(c.out, "Platform:  %s (API %d)\n", p, p.APILevel)
	fmt.Fprintf(c.out, "State:     %s\n", c.svc.State())
	if addr := c.svc.Addr(); addr != nil {
		fmt.Fprintf(c.out, "Listening: %s\n", addr)
	}
	fmt.Fprintf(c.out, "Sessions:  %d\n", c.svc.SessionCount())
	fmt.Fprintf(c.out, "Hot-plug callbacks: %d\n", c.host.CallbackCount())

	caps := c.svc.Capabilities()
	fmt.Fprintf(c.out, "Capabilities: trigger=%t wakeUp=%t dynamic=%t extended=%t\n",
		caps.TriggerSensors, caps.WakeUpSensors, caps.DynamicSensors, caps.ExtendedDescriptor)

	for _, s := range c.host.SensorList(sensor.TypeAll) {
		listeners := c.host.ListenerCount(s.Type)
		triggers := c.host.TriggerCount(s.Type)
		if listeners == 0 && triggers == 0 {
			continue
		}
		fmt.Fprintf(c.out, "  %-40s listeners=%d triggers=%d\n", s.Type, listeners, triggers)
	}
}

func (c *Console) cmdSensors() {
	show := func(s *sensor.Sensor) {
		fmt.Fprintf(c.out, "  [%3d] %-32s %-40s %s", s.ID, s.Name, s.Type, s.ReportingMode)
		if s.IsWakeUp {
			fmt.Fprint(c.out, " wake-up")
		}
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out, "Static sensors:")
	for _, s := range c.host.SensorList(sensor.TypeAll) {
		show(s)
	}
	dynamic := c.host.DynamicSensorList(sensor.TypeAll)
	if len(dynamic) > 0 {
		fmt.Fprintln(c.out, "Dynamic sensors:")
		for _, s := range dynamic {
			show(s)
		}
	}
}

func (c *Console) cmdEmit(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: emit <type> <value...>")
		return
	}
	t, values, ok := c.typeAndValues(args)
	if !ok {
		return
	}
	n := c.host.EmitEvent(t, values...)
	fmt.Fprintf(c.out, "Delivered to %d listener(s)\n", n)
}

func (c *Console) cmdAccuracy(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: accuracy <type> <-1..3>")
		return
	}
	t, err := sensor.ParseType(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	acc, err := strconv.Atoi(args[1])
	if err != nil || acc < sensor.AccuracyNoContact || acc > sensor.AccuracyHigh {
		fmt.Fprintf(c.out, "Error: accuracy must be -1..3, got %s\n", args[1])
		return
	}
	n := c.host.SetAccuracy(t, acc)
	fmt.Fprintf(c.out, "Notified %d listener(s)\n", n)
}

func (c *Console) cmdTrigger(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: trigger <type> [value...]")
		return
	}
	t, values, ok := c.typeAndValues(args)
	if !ok {
		return
	}
	if len(values) == 0 {
		values = []float32{1}
	}
	n := c.host.FireTrigger(t, values...)
	fmt.Fprintf(c.out, "Fired %d trigger(s)\n", n)
}

func (c *Console) cmdPlug(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: plug <id> <type> <name...>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: invalid id %q\n", args[0])
		return
	}
	t, err := sensor.ParseType(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	s := &sensor.Sensor{
		ID:         id,
		Name:       strings.Join(args[2:], " "),
		Vendor:     "External",
		Version:    1,
		Type:       t,
		StringType: sensor.TypeName(t),
		IsDynamic:  true,
	}
	n := c.host.ConnectDynamic(s)
	fmt.Fprintf(c.out, "Connected %q, notified %d callback(s)\n", s.Name, n)
}

func (c *Console) cmdUnplug(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unplug <id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: invalid id %q\n", args[0])
		return
	}
	if !c.host.DisconnectDynamic(id) {
		fmt.Fprintf(c.out, "No dynamic sensor with id %d\n", id)
		return
	}
	fmt.Fprintf(c.out, "Disconnected sensor %d\n", id)
}

func (c *Console) typeAndValues(args []string) (sensor.Type, []float32, bool) {
	t, err := sensor.ParseType(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return 0, nil, false
	}
	values := make([]float32, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			fmt.Fprintf(c.out, "Error: invalid value %q\n", a)
			return 0, nil, false
		}
		values = append(values, float32(v))
	}
	return t, values, true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
