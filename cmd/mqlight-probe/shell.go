package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mqlight/mqlight-go/pkg/engine"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/network"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

func newShellCmd(flags *globalFlags) *cobra.Command {
	var (
		attempts    int
		metricsAddr string
		trace       bool
	)

	cmd := &cobra.Command{
		Use:   "shell [uri]",
		Short: "Open an interactive session on a connection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := flags.load()
			if err != nil {
				return err
			}
			ep, err := flags.endpoint(file, args)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "mqlight> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			var extra []log.Logger
			if trace {
				zl, err := zap.NewDevelopment()
				if err != nil {
					return fmt.Errorf("failed to create trace logger: %w", err)
				}
				defer func() { _ = zl.Sync() }()
				extra = append(extra, log.NewZapAdapter(zl))
			}

			rt := newRuntime(file, rl.Stderr(), extra...)
			defer rt.close()

			if metricsAddr != "" {
				stop, err := serveMetrics(metricsAddr, rt.svc, rt.logger)
				if err != nil {
					return err
				}
				defer stop()
			}

			s := newSession(rl.Stdout())
			conn, err := connectWithRetry(cmd.Context(), rt, ep, attempts, s, rl.Stdout())
			if err != nil {
				return err
			}
			s.bind(conn, rt.svc)
			describe(rl.Stdout(), conn)

			s.run(cmd.Context(), rl)

			closeConnection(cmd.Context(), conn)
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 3, "connect attempts before giving up")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address (e.g. :9090)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print protocol events to stderr")
	return cmd
}

// serveMetrics exposes the network service collector over HTTP.
func serveMetrics(addr string, svc *network.Service, logger *slog.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(svc.Collector()); err != nil {
		return nil, fmt.Errorf("failed to register collector: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// session is an interactive connection. It prints inbound traffic and
// acknowledges at-least-once deliveries.
type session struct {
	out  io.Writer
	mu   sync.Mutex
	conn *engine.Connection
	svc  *network.Service

	opts    *engine.SendOptionsBuilder
	closed  chan struct{}
	closeMu sync.Once
}

func newSession(out io.Writer) *session {
	return &session{
		out:    out,
		opts:   engine.NewSendOptionsBuilder(),
		closed: make(chan struct{}),
	}
}

func (s *session) bind(conn *engine.Connection, svc *network.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.svc = svc
}

func (s *session) OnDeliver(c *engine.Connection, d engine.Delivery) {
	fmt.Fprintf(s.out, "<< %s [%s] %q\n", d.Topic, d.QOS, d.Data)
	if d.QOS == engine.AtLeastOnce {
		c.Acknowledge(d, nil)
	}
}

func (s *session) OnAck(_ *engine.Connection, a engine.Ack) {
	if a.Status.IsSuccess() {
		fmt.Fprintf(s.out, "ack %d\n", a.ID)
		return
	}
	fmt.Fprintf(s.out, "nack %d: %s %s\n", a.ID, a.Status, a.Reason)
}

func (s *session) OnError(_ *engine.Connection, err error) {
	fmt.Fprintf(s.out, "error: %v\n", err)
}

func (s *session) OnClose(*engine.Connection) {
	fmt.Fprintln(s.out, "connection closed")
	s.closeMu.Do(func() { close(s.closed) })
}

func (s *session) run(ctx context.Context, rl *readline.Instance) {
	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return
		}
		if s.exec(line) {
			return
		}
	}
}

// exec runs one command line. It reports whether the session should end.
func (s *session) exec(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "subscribe", "sub":
		err = s.cmdSubscribe(args)
	case "unsubscribe", "unsub":
		err = s.cmdUnsubscribe(args)
	case "send":
		err = s.cmdSend(args)
	case "set":
		err = s.cmdSet(args)
	case "subs":
		s.cmdSubs()
	case "stats":
		s.mu.Lock()
		svc := s.svc
		s.mu.Unlock()
		if svc != nil {
			printStats(s.out, svc.Stats())
		}
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

func (s *session) connection() *engine.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// cmdSubscribe handles: subscribe <pattern> [qos] [credit] [ttl-ms]
func (s *session) cmdSubscribe(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: subscribe <pattern> [qos] [credit] [ttl-ms]")
	}
	qos := engine.AtMostOnce
	credit := 1024
	var ttl int64
	var err error

	if len(args) > 1 {
		if qos, err = engine.ParseQOS(args[1]); err != nil {
			return err
		}
	}
	if len(args) > 2 {
		if credit, err = strconv.Atoi(args[2]); err != nil {
			return fmt.Errorf("invalid credit %q", args[2])
		}
	}
	if len(args) > 3 {
		if ttl, err = strconv.ParseInt(args[3], 10, 64); err != nil {
			return fmt.Errorf("invalid ttl %q", args[3])
		}
	}

	req, err := engine.NewSubscribeRequest(s.connection(), args[0], qos, credit, ttl)
	if err != nil {
		return err
	}
	s.submit(req)
	return nil
}

// cmdUnsubscribe handles: unsubscribe <pattern> [ttl-ms]
func (s *session) cmdUnsubscribe(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: unsubscribe <pattern> [ttl-ms]")
	}
	var ttl int64
	if len(args) > 1 {
		var err error
		if ttl, err = strconv.ParseInt(args[1], 10, 64); err != nil {
			return fmt.Errorf("invalid ttl %q", args[1])
		}
	}
	req, err := engine.NewUnsubscribeRequest(s.connection(), args[0], ttl)
	if err != nil {
		return err
	}
	s.submit(req)
	return nil
}

// cmdSend handles: send <topic> <text...>
func (s *session) cmdSend(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: send <topic> <text>")
	}
	opts, err := s.opts.Build()
	if err != nil {
		return err
	}
	req, err := engine.NewSendRequest(s.connection(), args[0], []byte(strings.Join(args[1:], " ")), opts)
	if err != nil {
		return err
	}
	s.submit(req)
	return nil
}

// cmdSet handles: set qos|ttl|retain <value>. An invalid value leaves the
// previous options in place.
func (s *session) cmdSet(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set qos|ttl|retain <value>")
	}
	current, err := s.opts.Build()
	if err != nil {
		return err
	}

	next := engine.NewSendOptionsBuilder().SetQOS(current.QOS()).SetRetainLink(current.RetainLink())
	if current.TTL() > 0 {
		next.SetTTL(current.TTL())
	}

	switch strings.ToLower(args[0]) {
	case "qos":
		qos, err := engine.ParseQOS(args[1])
		if err != nil {
			return err
		}
		next.SetQOS(qos)
	case "ttl":
		ttl, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ttl %q", args[1])
		}
		next.SetTTL(ttl)
	case "retain":
		retain, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid retain %q", args[1])
		}
		next.SetRetainLink(retain)
	default:
		return fmt.Errorf("unknown option %q", args[0])
	}

	opts, err := next.Build()
	if err != nil {
		return err
	}
	s.opts = next
	fmt.Fprintf(s.out, "send options %s\n", opts)
	return nil
}

func (s *session) cmdSubs() {
	conn := s.connection()
	if conn == nil {
		return
	}
	subs := conn.Subscriptions()
	if len(subs) == 0 {
		fmt.Fprintln(s.out, "No subscriptions")
		return
	}
	topics := make([]string, 0, len(subs))
	for t := range subs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	for _, t := range topics {
		sub := subs[t]
		fmt.Fprintf(s.out, "  %s qos=%s credit=%d ttl=%d\n", t, sub.QOS, sub.InitialCredit, sub.TTL)
	}
}

func (s *session) submit(msg engine.Message) {
	msg.Target().Submit(msg, promise.New(func(_ bool, err error) {
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}))
}

func (s *session) printHelp() {
	fmt.Fprintln(s.out, `
Commands:
  subscribe <pattern> [qos] [credit] [ttl-ms]  - Open a subscription
  unsubscribe <pattern> [ttl-ms]               - Close a subscription
  send <topic> <text>                          - Publish a message
  set qos|ttl|retain <value>                   - Change send options
  subs                                         - List subscriptions
  stats                                        - Show network statistics
  help                                         - Show this help
  quit                                         - Close the connection and exit`)
}
