// Command mqlight-probe exercises the client runtime against a broker.
//
// Usage:
//
//	mqlight-probe connect amqp://localhost
//	mqlight-probe shell amqps://broker.example.com --cert ca.pem
//	mqlight-probe log view events.cbor
//	mqlight-probe log stats events.cbor
//
// A YAML configuration file (--config) supplies network, backoff and
// logging settings; flags override it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mqlight/mqlight-go/pkg/config"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/network"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	cert       string
	noVerify   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "mqlight-probe",
		Short:         "Probe a messaging broker with the client runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "operational log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.cert, "cert", "", "trust bundle for TLS endpoints (PKCS#12 or PEM)")
	root.PersistentFlags().BoolVar(&flags.noVerify, "no-verify-name", false, "skip broker host name verification")

	root.AddCommand(
		newConnectCmd(flags),
		newShellCmd(flags),
		newLogCmd(),
	)
	return root
}

// runtime is the client runtime assembled from configuration and flags.
type runtime struct {
	file     *config.File
	logger   *slog.Logger
	plog     log.Logger
	closeLog func() error
	svc      *network.Service
}

func (f *globalFlags) load() (*config.File, error) {
	file := &config.File{}
	if f.configPath != "" {
		var err error
		if file, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if f.logLevel != "" {
		file.Logging.Level = f.logLevel
		if err := file.Validate(); err != nil {
			return nil, err
		}
	}
	return file, nil
}

// endpoint resolves the broker endpoint from args, falling back to the
// configuration file.
func (f *globalFlags) endpoint(file *config.File, args []string) (network.Endpoint, error) {
	if len(args) > 0 {
		file.Broker.URI = args[0]
	}
	if f.cert != "" {
		file.Broker.Certificate = f.cert
	}
	if f.noVerify {
		verify := false
		file.Broker.VerifyName = &verify
	}
	return file.Endpoint()
}

// newRuntime builds the network service. extra protocol loggers are added
// to the configured ones.
func newRuntime(file *config.File, stderr io.Writer, extra ...log.Logger) *runtime {
	logger := file.Logger(stderr)
	plog, closeLog := file.ProtocolLogger(logger)
	if len(extra) > 0 {
		plog = log.NewMultiLogger(append([]log.Logger{plog}, extra...)...)
	}

	cfg := file.NetworkConfig()
	cfg.Logger = logger
	cfg.ProtocolLogger = plog

	return &runtime{
		file:     file,
		logger:   logger,
		plog:     plog,
		closeLog: closeLog,
		svc:      network.NewService(cfg),
	}
}

func (r *runtime) close() {
	if err := r.closeLog(); err != nil {
		r.logger.Warn("failed to close protocol log", slog.Any("error", err))
	}
}
