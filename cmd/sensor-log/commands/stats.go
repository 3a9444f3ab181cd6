package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Connections       map[string]*ConnectionStats
	Streams           map[string]*StreamStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Calls     int
	Failures  int
}

// StreamStats holds statistics for one event channel.
type StreamStats struct {
	Events      int
	Binds       int
	Unbinds     int
	EndOfStream int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := openReader(path, log.Filter{}, os.Stdin)
	if err != nil {
		return err
	}
	defer reader.Close()

	stats, err := collectStats(reader)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(reader *log.Reader) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Connections:       make(map[string]*ConnectionStats),
		Streams:           make(map[string]*StreamStats),
	}

	err := forEach(reader, func(event log.Event) error {
		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		conn, ok := stats.Connections[event.ConnectionID]
		if !ok {
			conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Connections[event.ConnectionID] = conn
		}
		conn.Events++
		if event.Timestamp.After(conn.LastSeen) {
			conn.LastSeen = event.Timestamp
		}

		if msg := event.Message; msg != nil {
			switch msg.Kind {
			case wire.KindCall:
				conn.Calls++
			case wire.KindReply:
				if msg.Status != nil && msg.Status.IsError() {
					conn.Failures++
				}
			case wire.KindEvent:
				stats.stream(event.Channel).Events++
			case wire.KindEndOfStream:
				stats.stream(event.Channel).EndOfStream++
			}
		}

		if sc := event.StateChange; sc != nil && sc.Entity == log.StateEntityStream {
			s := stats.stream(event.Channel)
			switch sc.NewState {
			case "BOUND":
				s.Binds++
			case "IDLE":
				s.Unbinds++
			}
		}

		if event.Error != nil {
			stats.Errors++
		}
		return nil
	})
	return stats, err
}

func (s *Stats) stream(name string) *StreamStats {
	st, ok := s.Streams[name]
	if !ok {
		st = &StreamStats{}
		s.Streams[name] = st
	}
	return st
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Sensor Bridge Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, %d calls, %d failed, duration %s\n",
				shortenConnID(c.id), c.stats.Events, c.stats.Calls, c.stats.Failures, duration)
		}
	}

	if len(stats.Streams) > 0 {
		names := make([]string, 0, len(stats.Streams))
		for name := range stats.Streams {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(w)
		fmt.Fprintf(w, "Streams: %d\n", len(names))
		for _, name := range names {
			s := stats.Streams[name]
			fmt.Fprintf(w, "  %s\n", name)
			fmt.Fprintf(w, "           %d events, %d binds, %d unbinds", s.Events, s.Binds, s.Unbinds)
			if s.EndOfStream > 0 {
				fmt.Fprintf(w, ", %d ended", s.EndOfStream)
			}
			fmt.Fprintln(w)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
