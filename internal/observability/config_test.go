package observability

import (
	"testing"
	"time"

	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsObservabilitySection(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "production",
		AppVersion:  "1.2.3",
		Observability: config.ObservabilityConfig{
			LogLevel:           "info",
			LogSampling:        true,
			SlowQueryThreshold: 500 * time.Millisecond,
			OtelEndpoint:       "collector:4317",
			OtelProtocol:       "grpc",
			OtelSamplingRatio:  0.5,
		},
	})

	assert.Equal(t, "streamgate", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, 500*time.Millisecond, cfg.SlowQueryThreshold)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
	assert.True(t, cfg.Sampled())
}

func TestSamplingIsOffForLocalAndDebug(t *testing.T) {
	local := Config{Environment: "local", LogSampling: true}
	assert.True(t, local.Debug())
	assert.False(t, local.Sampled())

	debug := Config{Environment: "production", LogLevel: "DEBUG", LogSampling: true}
	assert.False(t, debug.Sampled())

	off := Config{Environment: "production", LogLevel: "info"}
	assert.False(t, off.Sampled())
}

func TestLoggerConfigCarriesSampling(t *testing.T) {
	cfg := provideLoggerConfig(Config{ServiceName: "streamgate", Environment: "production", LogSampling: true})

	assert.True(t, cfg.Sampling)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.IncludeStackOnError)
}
