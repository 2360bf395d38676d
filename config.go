package rtmpview

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/preflight"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/restart"
)

// supportedSchemes are the protocols rtmpsrc (librtmp) understands
var supportedSchemes = map[string]bool{
	"rtmp":   true,
	"rtmps":  true,
	"rtmpt":  true,
	"rtmpe":  true,
	"rtmpte": true,
	"rtmpts": true,
}

// DefaultElements returns the factories of the stock pipeline
func DefaultElements() ElementNames {
	return ElementNames{
		Source:    "rtmpsrc",
		Demuxer:   "flvdemux",
		Parser:    "h264parse",
		Decoder:   "avdec_h264",
		Converter: "videoconvert",
		Sink:      "autovideosink",
	}
}

// DefaultConfig returns a configuration that plays DefaultLocation once,
// without preflight, inspection or restarts.
func DefaultConfig() Config {
	rc := restart.DefaultConfig()
	return Config{
		Location:     DefaultLocation,
		PipelineName: "pipeline",
		Elements:     DefaultElements(),
		Preflight: PreflightConfig{
			TimeoutMS: int(preflight.DefaultTimeout / time.Millisecond),
		},
		Restart: RestartConfig{
			MaxRetries:     rc.MaxRetries,
			InitialDelayMS: int(rc.RetryDelay / time.Millisecond),
			MaxDelayMS:     int(rc.MaxRetryDelay / time.Millisecond),
		},
		Events: EventsConfig{
			Topic:  "rtmp-view/events",
			Format: emitter.FormatJSON,
		},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
// Keys absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: failed to read config file: %v", ErrConfig, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: failed to parse config: %v", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the configuration (fail-fast)
func (c Config) Validate() error {
	if c.Location == "" {
		return fmt.Errorf("%w: location is required", ErrConfig)
	}

	u, err := url.Parse(c.Location)
	if err != nil {
		return fmt.Errorf("%w: invalid location %q: %v", ErrConfig, c.Location, err)
	}
	if !supportedSchemes[u.Scheme] {
		return fmt.Errorf("%w: unsupported location scheme %q", ErrConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: location %q has no host", ErrConfig, c.Location)
	}

	for _, r := range c.Elements.roles() {
		if strings.TrimSpace(r.factory) == "" {
			return fmt.Errorf("%w: elements.%s is empty", ErrConfig, r.role)
		}
	}

	if c.Preflight.Enabled && u.Scheme != "rtmp" {
		return fmt.Errorf("%w: preflight only supports rtmp:// locations", ErrConfig)
	}
	if c.Preflight.TimeoutMS < 0 {
		return fmt.Errorf("%w: preflight.timeout_ms must be >= 0", ErrConfig)
	}

	if c.Restart.MaxRetries < 0 {
		return fmt.Errorf("%w: restart.max_retries must be >= 0", ErrConfig)
	}
	if c.Restart.InitialDelayMS < 0 || c.Restart.MaxDelayMS < 0 {
		return fmt.Errorf("%w: restart delays must be >= 0", ErrConfig)
	}

	if c.Events.QoS < 0 || c.Events.QoS > 2 {
		return fmt.Errorf("%w: events.qos must be 0, 1 or 2", ErrConfig)
	}
	switch strings.ToLower(c.Events.Format) {
	case "", emitter.FormatJSON, emitter.FormatMsgpack:
	default:
		return fmt.Errorf("%w: events.format must be json or msgpack", ErrConfig)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return nil
}

// SlogLevel returns the configured log level
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func (c Config) restartConfig() restart.Config {
	return restart.Config{
		MaxRetries:    c.Restart.MaxRetries,
		RetryDelay:    time.Duration(c.Restart.InitialDelayMS) * time.Millisecond,
		MaxRetryDelay: time.Duration(c.Restart.MaxDelayMS) * time.Millisecond,
	}
}

// EmitterConfig returns the MQTT emitter settings
func (c Config) EmitterConfig() emitter.Config {
	clientID := c.Events.ClientID
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = "rtmp-view-" + host
	}
	return emitter.Config{
		Broker:   c.Events.Broker,
		ClientID: clientID,
		Topic:    c.Events.Topic,
		QoS:      byte(c.Events.QoS),
		Format:   c.Events.Format,
	}
}

func (c Config) preflightTimeout() time.Duration {
	return time.Duration(c.Preflight.TimeoutMS) * time.Millisecond
}

type elementRole struct {
	role    string
	factory string
}

// roles lists the stages in pipeline order
func (e ElementNames) roles() []elementRole {
	return []elementRole{
		{"source", e.Source},
		{"demuxer", e.Demuxer},
		{"parser", e.Parser},
		{"decoder", e.Decoder},
		{"converter", e.Converter},
		{"sink", e.Sink},
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
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}
