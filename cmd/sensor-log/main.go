// Command sensor-log views and analyzes sensor bridge protocol logs.
//
// Log files are written by sensor-bridge and sensor-client when started
// with the -protocol-log flag.
//
// Usage:
//
//	sensor-log <command> [flags] <file.slog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines or CSV
//	filter   Filter log file and write to new file
//	stats    Show per-connection and per-stream statistics
//
// Use "-" as file name to read from standard input.
//
// Examples:
//
//	# View stream state changes only
//	sensor-log view -category state bridge.slog
//
//	# View everything on the trigger streams
//	sensor-log view -channel com.switches/sensor_manager/trigger/ bridge.slog
//
//	# Keep one connection
//	sensor-log filter -conn-id abc12345-... -o conn.slog bridge.slog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/switches/sensorbridge/cmd/sensor-log/commands"
)

const usage = `sensor-log - Sensor Bridge Protocol Log Analyzer

Usage:
  sensor-log <command> [flags] <file.slog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines or CSV
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "sensor-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// bindViewFlags registers the event selection flags shared by view and filter.
func bindViewFlags(fs *flag.FlagSet, opts *commands.ViewOptions) {
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.Channel, "channel", "", "Filter by channel name prefix")
}

func parse(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `sensor-log view - View log file in human-readable format

Usage:
  sensor-log view [flags] <file.slog>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.ViewOptions
	bindViewFlags(fs, &opts)
	path := parse(fs, args)

	if err := commands.RunView(path, opts, os.Stdin, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `sensor-log export - Export log file to JSON lines or CSV

Usage:
  sensor-log export [flags] <file.slog>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parse(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `sensor-log filter - Filter log file and write to new file

Usage:
  sensor-log filter [flags] <file.slog>

Flags:
`)
		fs.PrintDefaults()
	}

	var opts commands.FilterOptions
	bindViewFlags(fs, &opts.ViewOptions)
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	path := parse(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `sensor-log stats - Show statistics about the log file

Usage:
  sensor-log stats <file.slog>

`)
	}
	path := parse(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
