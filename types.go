package rtmpview

import (
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/inspect"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/stats"
)

// DefaultLocation is the RTMP URL played when none is configured
const DefaultLocation = "rtmp://localhost:1935/stream/video"

// ElementNames holds the factory name used for each pipeline stage
type ElementNames struct {
	Source    string `yaml:"source"`
	Demuxer   string `yaml:"demuxer"`
	Parser    string `yaml:"parser"`
	Decoder   string `yaml:"decoder"`
	Converter string `yaml:"converter"`
	Sink      string `yaml:"sink"`
}

// PreflightConfig controls the RTMP connect check run before building
type PreflightConfig struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMS int  `yaml:"timeout_ms"`
}

// RestartConfig controls rebuilding the pipeline after a runtime error
type RestartConfig struct {
	MaxRetries     int `yaml:"max_retries"`      // 0 disables restarts
	InitialDelayMS int `yaml:"initial_delay_ms"` // Doubled per attempt
	MaxDelayMS     int `yaml:"max_delay_ms"`
}

// EventsConfig controls publishing session events to MQTT.
// Publishing is disabled while Broker is empty.
type EventsConfig struct {
	Broker   string `yaml:"broker"`    // host:port or tcp:// / ssl:// URL
	ClientID string `yaml:"client_id"` // Defaults to rtmp-view-{hostname}
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
	Format   string `yaml:"format"` // json or msgpack
}

// Config is the complete viewer configuration
type Config struct {
	Location     string          `yaml:"location"`
	PipelineName string          `yaml:"pipeline_name"`
	Elements     ElementNames    `yaml:"elements"`
	Preflight    PreflightConfig `yaml:"preflight"`
	Inspect      bool            `yaml:"inspect"`     // Decode parser output to report keyframes/SPS
	Restart      RestartConfig   `yaml:"restart"`
	Events       EventsConfig    `yaml:"events"`
	StrictExit   bool            `yaml:"strict_exit"` // Exit 1 instead of 0 after a runtime error
	LogLevel     string          `yaml:"log_level"`   // debug, info, warn, error
}

// OutcomeKind is how a run ended
type OutcomeKind int

const (
	// OutcomeEOS means the stream ended normally
	OutcomeEOS OutcomeKind = iota
	// OutcomeError means an element posted an error on the bus
	OutcomeError
	// OutcomeInterrupted means the context was cancelled while waiting
	OutcomeInterrupted
	// OutcomeUnknown means the bus returned an unexpected message type
	OutcomeUnknown
)

// String returns a human-readable name for the outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEOS:
		return "eos"
	case OutcomeError:
		return "error"
	case OutcomeInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Outcome is the result of a run whose pipeline was successfully built
type Outcome struct {
	Kind OutcomeKind
	// Err is set when Kind is OutcomeError
	Err *RuntimeError
	// SessionID identifies the last session in logs
	SessionID string
	// Duration is the time spent PLAYING in the last session
	Duration time.Duration
	// Restarts is the number of times the pipeline was rebuilt
	Restarts int
	// PadsLinked counts demuxer pads linked to the parser in the last session
	PadsLinked int
	// Stats describes the frames that reached the sink
	Stats stats.Summary
	// Inspection is set when Config.Inspect is enabled
	Inspection *inspect.Report
}
