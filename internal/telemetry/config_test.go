package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "disabled config skips validation",
			cfg:  Config{Enabled: false},
		},
		{
			name: "valid grpc config",
			cfg: Config{
				Enabled:     true,
				Endpoint:    "localhost:4317",
				Protocol:    ProtocolGRPC,
				Insecure:    true,
				ServiceName: "docchatd",
				SampleRate:  1.0,
			},
		},
		{
			name: "valid http config",
			cfg: Config{
				Enabled:     true,
				Endpoint:    "collector.internal:4318",
				Protocol:    ProtocolHTTPProtobuf,
				ServiceName: "docchatd",
				SampleRate:  0.25,
			},
		},
		{
			name: "missing endpoint",
			cfg: Config{
				Enabled:     true,
				ServiceName: "docchatd",
				SampleRate:  1.0,
			},
			wantErr: "endpoint is required",
		},
		{
			name: "missing service name",
			cfg: Config{
				Enabled:    true,
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
			},
			wantErr: "service name is required",
		},
		{
			name: "unknown protocol",
			cfg: Config{
				Enabled:     true,
				Endpoint:    "localhost:4317",
				Protocol:    "udp",
				ServiceName: "docchatd",
				SampleRate:  1.0,
			},
			wantErr: "unknown protocol",
		},
		{
			name: "insecure remote endpoint",
			cfg: Config{
				Enabled:     true,
				Endpoint:    "collector.example.com:4317",
				Insecure:    true,
				ServiceName: "docchatd",
				SampleRate:  1.0,
			},
			wantErr: "not allowed",
		},
		{
			name: "sample rate out of range",
			cfg: Config{
				Enabled:     true,
				Endpoint:    "localhost:4317",
				ServiceName: "docchatd",
				SampleRate:  1.5,
			},
			wantErr: "sample rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 15*time.Second, cfg.MetricInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"localhost", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.1", true},
		{"[::1]:4317", true},
		{"[::1]", true},
		{"::1", true},
		{"collector.example.com:4317", false},
		{"10.0.0.5:4317", false},
		{"otel.internal", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			assert.Equal(t, tt.local, isLocalEndpoint(tt.endpoint))
		})
	}
}
