package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidConfig indicates the telemetry configuration is invalid.
var ErrInvalidConfig = errors.New("telemetry: invalid configuration")

// Exporter protocols.
const (
	ProtocolGRPC         = "grpc"
	ProtocolHTTPProtobuf = "http/protobuf"
)

const (
	defaultEndpoint        = "localhost:4317"
	defaultProtocol        = ProtocolGRPC
	defaultSampleRate      = 1.0
	defaultMetricInterval  = 15 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds OTLP export settings.
type Config struct {
	// Enabled turns telemetry export on. When false, New returns a
	// no-op instance and the global providers stay untouched.
	Enabled bool

	// Endpoint is the OTLP collector address as host:port.
	// Default: localhost:4317.
	Endpoint string

	// Protocol selects the exporter transport, "grpc" or
	// "http/protobuf". Default: grpc.
	Protocol string

	// Insecure disables TLS on the exporter connection. Only allowed
	// for local endpoints.
	Insecure bool

	// ServiceName is reported as service.name on every span and
	// metric. Required when enabled.
	ServiceName string

	// ServiceVersion is reported as service.version.
	ServiceVersion string

	// SampleRate is the trace sampling ratio in [0, 1]. Default: 1.0.
	SampleRate float64

	// MetricInterval is the metric export period. Default: 15s.
	MetricInterval time.Duration

	// ShutdownTimeout bounds provider shutdown when the caller's
	// context has no deadline. Default: 5s.
	ShutdownTimeout time.Duration
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTPProtobuf:
	default:
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, c.Protocol)
	}
	// Plaintext export is confined to the local host.
	if c.Insecure && !isLocalEndpoint(c.Endpoint) {
		return fmt.Errorf("%w: insecure export to remote endpoint %q is not allowed", ErrInvalidConfig, c.Endpoint)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample rate must be in [0, 1], got %g", ErrInvalidConfig, c.SampleRate)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Protocol == "" {
		c.Protocol = defaultProtocol
	}
	if c.SampleRate == 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = defaultMetricInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

// isLocalEndpoint reports whether the endpoint points at the local host.
func isLocalEndpoint(endpoint string) bool {
	host := endpoint

	// Bracketed IPv6 with or without a port: [::1]:4317, [::1].
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		// IPv4 or hostname with port.
		host = host[:strings.LastIndex(host, ":")]
	}

	return host == "localhost" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(endpoint, "::1")
}
