package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/engine"
	"github.com/mqlight/mqlight-go/pkg/network"
	"github.com/mqlight/mqlight-go/pkg/promise"
	"github.com/mqlight/mqlight-go/pkg/timer"
)

func newConnectCmd(flags *globalFlags) *cobra.Command {
	var attempts int

	cmd := &cobra.Command{
		Use:   "connect [uri]",
		Short: "Open a connection, report it and close it",
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

			rt := newRuntime(file, cmd.ErrOrStderr())
			defer rt.close()

			conn, err := connectWithRetry(cmd.Context(), rt, ep, attempts, engine.HandlerFuncs{}, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			describe(cmd.OutOrStdout(), conn)

			closeConnection(cmd.Context(), conn)
			waitDrained(rt.svc, 2*time.Second)
			printStats(cmd.OutOrStdout(), rt.svc.Stats())
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 1, "connect attempts before giving up")
	return cmd
}

// connectWithRetry connects, retrying failures other than validation
// errors with the configured backoff.
func connectWithRetry(ctx context.Context, rt *runtime, ep network.Endpoint, attempts int, h engine.InboundHandler, out io.Writer) (*engine.Connection, error) {
	timers := timer.NewService(timer.Config{ProtocolLogger: rt.plog})
	defer timers.Stop()
	backoff := timer.NewBackoff(rt.file.BackoffConfig())

	for attempt := 1; ; attempt++ {
		conn, err := connect(ctx, rt, ep, h)
		if err == nil {
			return conn, nil
		}
		if attempt >= attempts || clienterr.KindOf(err) == clienterr.KindValidation {
			return nil, err
		}

		wait := promise.New[struct{}](nil)
		delay := backoff.ScheduleNext(timers, wait)
		fmt.Fprintf(out, "attempt %d failed: %v (retrying in %s)\n", attempt, err, delay.Round(time.Millisecond))
		select {
		case <-wait.Done():
		case <-ctx.Done():
			timers.Cancel(wait)
			return nil, ctx.Err()
		}
	}
}

func connect(ctx context.Context, rt *runtime, ep network.Endpoint, h engine.InboundHandler) (*engine.Connection, error) {
	p := promise.New[*engine.Connection](nil)
	engine.Connect(rt.svc, ep, engine.Config{
		Handler:        h,
		Logger:         rt.logger,
		ProtocolLogger: rt.plog,
	}, p)

	select {
	case <-p.Done():
		return p.Result()
	case <-ctx.Done():
		p.Fail(clienterr.Cancelled("connect", ctx.Err()))
		return p.Result()
	}
}

func closeConnection(ctx context.Context, conn *engine.Connection) {
	p := promise.New[struct{}](nil)
	conn.Close(p)
	select {
	case <-p.Done():
	case <-ctx.Done():
	}
}

// waitDrained waits for the shared worker group to be torn down.
func waitDrained(svc *network.Service, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for svc.Stats().Workers.Active && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func describe(w io.Writer, conn *engine.Connection) {
	fmt.Fprintf(w, "Connection: %s\n", conn.ID())
	ch, ok := conn.Channel().(*network.Channel)
	if !ok {
		return
	}
	fmt.Fprintf(w, "  Channel:  %s\n", ch.ID())
	fmt.Fprintf(w, "  Endpoint: %s\n", ch.Endpoint())
	fmt.Fprintf(w, "  Local:    %s\n", ch.LocalAddr())
	fmt.Fprintf(w, "  Remote:   %s\n", ch.RemoteAddr())
	if state, ok := ch.TLSConnectionState(); ok {
		fmt.Fprintf(w, "  TLS:      %s, %s\n", tls.VersionName(state.Version), tls.CipherSuiteName(state.CipherSuite))
		if len(state.PeerCertificates) > 0 {
			fmt.Fprintf(w, "  Peer:     %s\n", state.PeerCertificates[0].Subject)
		}
	}
}

func printStats(w io.Writer, s network.Stats) {
	fmt.Fprintln(w, "Statistics:")
	fmt.Fprintf(w, "  Channels:       %d opened, %d open\n", s.Connects, s.OpenChannels())
	fmt.Fprintf(w, "  Failures:       %d connect, %d security\n", s.ConnectFailures, s.SecurityFailures)
	fmt.Fprintf(w, "  Bytes:          %d written, %d read\n", s.BytesWritten, s.BytesRead)
	fmt.Fprintf(w, "  Failed writes:  %d\n", s.WritesFailed)
	fmt.Fprintf(w, "  Worker group:   %d refs, generation %d, %d teardowns\n",
		s.Workers.Refs, s.Workers.Generation, s.Workers.Teardowns)
}
