package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/streamgate/internal/config"
)

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	// LogSampling thins repeated entries outside debug. Provisioning retries
	// and webhook floods otherwise drown the job logs.
	LogSampling bool

	SlowQueryThreshold time.Duration

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	obs := cfg.Observability
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "streamgate"
	}
	return Config{
		ServiceName:          serviceName,
		Environment:          cfg.Environment,
		Version:              cfg.AppVersion,
		LogLevel:             obs.LogLevel,
		LogFormat:            obs.LogFormat,
		LogSampling:          obs.LogSampling,
		SlowQueryThreshold:   obs.SlowQueryThreshold,
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: obs.OtelEndpoint,
		OtelExporterProtocol: obs.OtelProtocol,
		OtelSamplingRatio:    obs.OtelSamplingRatio,
	}
}

// Debug is true for debug log level and for local environments.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Sampled reports whether the zap sampler should be installed.
func (c Config) Sampled() bool {
	return c.LogSampling && !c.Debug()
}
