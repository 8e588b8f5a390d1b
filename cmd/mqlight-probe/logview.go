package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mqlight/mqlight-go/pkg/log"
)

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol event log files",
	}

	var (
		connID    string
		layer     string
		category  string
		direction string
	)
	view := &cobra.Command{
		Use:   "view <file>",
		Short: "Print events in human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := log.Filter{ConnectionID: connID}
			var dir *log.Direction
			if layer != "" {
				l, err := parseLayer(layer)
				if err != nil {
					return err
				}
				filter.Layer = &l
			}
			if category != "" {
				c, err := parseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = &c
			}
			if direction != "" {
				d, err := parseDirection(direction)
				if err != nil {
					return err
				}
				dir = &d
			}
			return runView(args[0], filter, dir, cmd.OutOrStdout())
		},
	}
	view.Flags().StringVar(&connID, "conn-id", "", "only events of this connection or channel")
	view.Flags().StringVar(&layer, "layer", "", "only events of this layer (transport, engine, timer)")
	view.Flags().StringVar(&category, "category", "", "only events of this category (data, state, error, timer)")
	view.Flags().StringVar(&direction, "direction", "", "only events in this direction (in, out)")

	stats := &cobra.Command{
		Use:   "stats <file>",
		Short: "Summarise an event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogStats(args[0], cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(view, stats)
	return cmd
}

func runView(path string, filter log.Filter, dir *log.Direction, w io.Writer) error {
	reader, err := log.OpenReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if dir != nil && event.Direction != *dir {
			continue
		}
		formatEvent(w, event)
	}
}

// formatEvent writes one event as a header line plus indented details.
func formatEvent(w io.Writer, event log.Event) {
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var label string
	switch {
	case event.Frame != nil:
		label = "Frame"
	case event.Request != nil:
		label = event.Request.Type
	case event.StateChange != nil:
		label = "State"
	case event.Timer != nil:
		label = "Timer"
	case event.Error != nil:
		label = "Error"
	default:
		label = "Unknown"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, shortID(event.ConnectionID), event.Direction, event.Layer, label)
	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		f := event.Frame
		fmt.Fprintf(w, "  Size: %d bytes\n", f.Size)
		if len(f.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(f.Data))
			if f.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
		if f.QueueEmpty != nil {
			fmt.Fprintf(w, "  Queue empty: %t\n", *f.QueueEmpty)
		}
	case event.Request != nil:
		r := event.Request
		fmt.Fprintf(w, "  Topic: %s\n", r.Topic)
		if r.QOS != "" {
			fmt.Fprintf(w, "  QOS: %s\n", r.QOS)
		}
		if r.TTL > 0 {
			fmt.Fprintf(w, "  TTL: %dms\n", r.TTL)
		}
		if r.Credit != nil {
			fmt.Fprintf(w, "  Credit: %d\n", *r.Credit)
		}
		if r.Size > 0 {
			fmt.Fprintf(w, "  Size: %d bytes\n", r.Size)
		}
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
		} else {
			fmt.Fprintf(w, "  -> %s\n", sc.NewState)
		}
		if sc.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
		}
	case event.Timer != nil:
		fmt.Fprintf(w, "  %s after %s\n", event.Timer.Outcome, formatDuration(event.Timer.Delay))
	case event.Error != nil:
		e := event.Error
		if e.Kind != "" {
			fmt.Fprintf(w, "  Kind: %s\n", e.Kind)
		}
		fmt.Fprintf(w, "  Message: %s\n", e.Message)
		if e.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", e.Context)
		}
	}

	fmt.Fprintln(w)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "engine":
		return log.LayerEngine, nil
	case "timer":
		return log.LayerTimer, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, engine or timer)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "data":
		return log.CategoryData, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	case "timer":
		return log.CategoryTimer, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be data, state, error or timer)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// logStats aggregates an event log.
type logStats struct {
	total       int
	byLayer     map[log.Layer]int
	byCategory  map[log.Category]int
	bytes       map[log.Direction]int
	requests    map[string]int
	connections map[string]*connStats
	errors      int
	start, end  time.Time
}

type connStats struct {
	firstSeen, lastSeen time.Time
	events              int
	remote              string
}

func runLogStats(path string, w io.Writer) error {
	reader, err := log.OpenReader(path, log.Filter{})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &logStats{
		byLayer:     make(map[log.Layer]int),
		byCategory:  make(map[log.Category]int),
		bytes:       make(map[log.Direction]int),
		requests:    make(map[string]int),
		connections: make(map[string]*connStats),
	}
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	stats.print(w)
	return nil
}

func (s *logStats) add(event log.Event) {
	s.total++
	s.byLayer[event.Layer]++
	s.byCategory[event.Category]++

	if s.start.IsZero() || event.Timestamp.Before(s.start) {
		s.start = event.Timestamp
	}
	if event.Timestamp.After(s.end) {
		s.end = event.Timestamp
	}

	if event.Frame != nil {
		s.bytes[event.Direction] += event.Frame.Size
	}
	if event.Request != nil {
		s.requests[event.Request.Type]++
	}
	if event.Error != nil {
		s.errors++
	}

	if event.ConnectionID == "" {
		return
	}
	c, ok := s.connections[event.ConnectionID]
	if !ok {
		c = &connStats{firstSeen: event.Timestamp, lastSeen: event.Timestamp}
		s.connections[event.ConnectionID] = c
	}
	c.events++
	if event.Timestamp.After(c.lastSeen) {
		c.lastSeen = event.Timestamp
	}
	if c.remote == "" {
		c.remote = event.RemoteAddr
	}
}

func (s *logStats) print(w io.Writer) {
	fmt.Fprintln(w, "=== Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if s.total > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", s.start.Format(time.RFC3339), s.end.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", s.end.Sub(s.start).Round(time.Millisecond))
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total Events: %d\n", s.total)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerEngine, log.LayerTimer} {
		if n := s.byLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", l.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryData, log.CategoryState, log.CategoryError, log.CategoryTimer} {
		if n := s.byCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Bytes: %d out, %d in\n", s.bytes[log.DirectionOut], s.bytes[log.DirectionIn])

	if len(s.requests) > 0 {
		types := make([]string, 0, len(s.requests))
		for t := range s.requests {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Requests:")
		for _, t := range types {
			fmt.Fprintf(w, "  %-12s %d\n", t+":", s.requests[t])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Connections: %d\n", len(s.connections))
	ids := make([]string, 0, len(s.connections))
	for id := range s.connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.connections[ids[i]].firstSeen.Before(s.connections[ids[j]].firstSeen)
	})
	for _, id := range ids {
		c := s.connections[id]
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortID(id), c.events, c.lastSeen.Sub(c.firstSeen).Round(time.Millisecond))
		if c.remote != "" {
			fmt.Fprintf(w, "           Remote: %s\n", c.remote)
		}
	}

	if s.errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", s.errors)
	}
}
