// Package config loads client runtime settings from YAML.
//
// A file looks like:
//
//	broker:
//	  uri: amqps://broker.example.com
//	  certificate: /etc/mqlight/truststore.p12
//	network:
//	  connect_timeout: 10s
//	  high_water_mark: 131072
//	backoff:
//	  initial: 500ms
//	  max: 30s
//	logging:
//	  level: debug
//	  format: json
//	  protocol:
//	    path: /var/log/mqlight/events.cbor
//	    max_size_mb: 50
//
// Unset values keep the package defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/network"
	"github.com/mqlight/mqlight-go/pkg/timer"
)

// File is the decoded configuration file.
type File struct {
	Broker  Broker  `yaml:"broker"`
	Network Network `yaml:"network"`
	Backoff Backoff `yaml:"backoff"`
	Logging Logging `yaml:"logging"`
}

// Broker selects the broker endpoint.
type Broker struct {
	URI         string `yaml:"uri"`
	Certificate string `yaml:"certificate,omitempty"`

	// VerifyName overrides the scheme's host name verification default.
	VerifyName *bool `yaml:"verify_name,omitempty"`
}

// Network tunes the network service.
type Network struct {
	ConnectTimeout     time.Duration `yaml:"connect_timeout,omitempty"`
	KeepAlive          time.Duration `yaml:"keep_alive,omitempty"`
	WriteTimeout       time.Duration `yaml:"write_timeout,omitempty"`
	ReadBufferSize     int           `yaml:"read_buffer_size,omitempty"`
	HighWaterMark      int           `yaml:"high_water_mark,omitempty"`
	LowWaterMark       int           `yaml:"low_water_mark,omitempty"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace,omitempty"`
	TrustStorePassword string        `yaml:"truststore_password,omitempty"`
}

// Backoff tunes reconnection delays.
type Backoff struct {
	Initial    time.Duration `yaml:"initial,omitempty"`
	Max        time.Duration `yaml:"max,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty"`
	Jitter     *float64      `yaml:"jitter,omitempty"`
}

// Logging configures operational and protocol logging.
type Logging struct {
	// Level is debug, info, warn or error (default: info).
	Level string `yaml:"level,omitempty"`

	// Format is text or json (default: text).
	Format string `yaml:"format,omitempty"`

	Protocol ProtocolLog `yaml:"protocol,omitempty"`
}

// ProtocolLog configures the protocol event log.
type ProtocolLog struct {
	// Path of a CBOR event file. Empty disables the file.
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`

	// Console mirrors events to the operational logger at debug level.
	Console bool `yaml:"console,omitempty"`
}

// LoadError describes a configuration that could not be loaded.
type LoadError struct {
	// File is the path of the configuration file, if any.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes and validates a configuration from YAML bytes. Unknown
// keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := f.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return &f, nil
}

// Load reads and parses the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return f, nil
}

// Validate checks value ranges that the decoder cannot.
func (f *File) Validate() error {
	n := f.Network
	for name, d := range map[string]time.Duration{
		"connect_timeout": n.ConnectTimeout,
		"write_timeout":   n.WriteTimeout,
		"shutdown_grace":  n.ShutdownGrace,
	} {
		if d < 0 {
			return fmt.Errorf("network.%s must not be negative", name)
		}
	}
	if n.ReadBufferSize < 0 || n.HighWaterMark < 0 || n.LowWaterMark < 0 {
		return errors.New("network sizes must not be negative")
	}
	if n.HighWaterMark > 0 && n.LowWaterMark > n.HighWaterMark {
		return fmt.Errorf("network.low_water_mark %d exceeds high_water_mark %d", n.LowWaterMark, n.HighWaterMark)
	}
	if b := f.Backoff; b.Max > 0 && b.Initial > b.Max {
		return fmt.Errorf("backoff.initial %s exceeds backoff.max %s", b.Initial, b.Max)
	}
	if _, err := parseLevel(f.Logging.Level); err != nil {
		return err
	}
	switch strings.ToLower(f.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown logging.format %q", f.Logging.Format)
	}
	return nil
}

// Endpoint returns the configured broker endpoint.
func (f *File) Endpoint() (network.Endpoint, error) {
	if f.Broker.URI == "" {
		return network.Endpoint{}, errors.New("broker.uri is required")
	}
	ep, err := network.ParseEndpoint(f.Broker.URI)
	if err != nil {
		return network.Endpoint{}, err
	}
	ep.CertificateFile = f.Broker.Certificate
	if f.Broker.VerifyName != nil {
		ep.VerifyName = *f.Broker.VerifyName
	}
	return ep, ep.Validate()
}

// NetworkConfig returns the network service configuration: the defaults
// overridden by every value set in the file. Loggers are left to the caller.
func (f *File) NetworkConfig() network.Config {
	cfg := network.DefaultConfig()
	n := f.Network
	if n.ConnectTimeout > 0 {
		cfg.ConnectTimeout = n.ConnectTimeout
	}
	if n.KeepAlive != 0 {
		cfg.KeepAlive = n.KeepAlive
	}
	if n.WriteTimeout > 0 {
		cfg.WriteTimeout = n.WriteTimeout
	}
	if n.ReadBufferSize > 0 {
		cfg.ReadBufferSize = n.ReadBufferSize
	}
	if n.HighWaterMark > 0 {
		cfg.WaterMarks.High = n.HighWaterMark
	}
	if n.LowWaterMark > 0 {
		cfg.WaterMarks.Low = n.LowWaterMark
	}
	if n.ShutdownGrace > 0 {
		cfg.ShutdownGrace = n.ShutdownGrace
	}
	cfg.TrustStorePassword = n.TrustStorePassword
	return cfg
}

// BackoffConfig returns the reconnection backoff configuration.
func (f *File) BackoffConfig() timer.BackoffConfig {
	b := f.Backoff
	cfg := timer.BackoffConfig{
		Initial:    b.Initial,
		Max:        b.Max,
		Multiplier: b.Multiplier,
	}
	if b.Jitter != nil {
		cfg.Jitter = *b.Jitter
		if cfg.Jitter == 0 {
			cfg.Jitter = -1
		}
	}
	return cfg
}

// Logger creates the operational logger writing to w.
func (f *File) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(f.Logging.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(f.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ProtocolLogger creates the protocol event logger. The returned close
// function flushes and closes the event file; it is safe to call when no
// file is configured.
func (f *File) ProtocolLogger(console *slog.Logger) (log.Logger, func() error) {
	p := f.Logging.Protocol
	var loggers []log.Logger
	closeFn := func() error { return nil }

	if p.Path != "" {
		file := log.NewRotatingFileLogger(log.RotationConfig{
			Path:       p.Path,
			MaxSizeMB:  p.MaxSizeMB,
			MaxBackups: p.MaxBackups,
			MaxAgeDays: p.MaxAgeDays,
			Compress:   p.Compress,
		})
		loggers = append(loggers, file)
		closeFn = file.Close
	}
	if p.Console && console != nil {
		loggers = append(loggers, log.NewSlogAdapter(console))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closeFn
	case 1:
		return loggers[0], closeFn
	default:
		return log.NewMultiLogger(loggers...), closeFn
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level %q", s)
	}
}
