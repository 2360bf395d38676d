package rtmpview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/inspect"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/media"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/preflight"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/restart"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/stats"
)

// Diagnostics printed for the user, independent of structured logging
const (
	msgElementsNotCreated = "Not all elements could be created."
	msgSourceNotLinked    = "Elements could not be linked"
	msgChainNotLinked     = "Element could not be linked"
	msgNotPlaying         = "Unable to set pipeline to the playing state"
	msgEndOfStream        = "End of stream"
	msgUnknownMessage     = "Unknown message received"
)

// PreflightFunc checks that location is reachable before building
type PreflightFunc func(ctx context.Context, location string, timeout time.Duration, debug bool) error

// EventPublisher receives session lifecycle events
type EventPublisher interface {
	Publish(ev emitter.Event) error
}

// Viewer builds and supervises the RTMP playback pipeline
type Viewer struct {
	fw        media.Framework
	cfg       Config
	out       io.Writer
	errOut    io.Writer
	preflight PreflightFunc
	events    EventPublisher
}

// Option customizes a Viewer
type Option func(*Viewer)

// WithOutput redirects the user-facing diagnostics (stdout/stderr by default)
func WithOutput(out, errOut io.Writer) Option {
	return func(v *Viewer) {
		v.out = out
		v.errOut = errOut
	}
}

// WithPreflight replaces the RTMP preflight check
func WithPreflight(fn PreflightFunc) Option {
	return func(v *Viewer) {
		v.preflight = fn
	}
}

// WithEvents publishes session_started and session_ended events to p
func WithEvents(p EventPublisher) Option {
	return func(v *Viewer) {
		v.events = p
	}
}

// New creates a viewer bound to the given framework handle.
// Returns an error wrapping ErrConfig if cfg is invalid.
func New(fw media.Framework, cfg Config, opts ...Option) (*Viewer, error) {
	if fw == nil {
		return nil, fmt.Errorf("rtmp-view: framework is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := &Viewer{
		fw:        fw,
		cfg:       cfg,
		out:       os.Stdout,
		errOut:    os.Stderr,
		preflight: preflight.Check,
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Run plays the stream until end-of-stream, a pipeline error or ctx
// cancellation.
//
// The returned error is non-nil only for failures before the pipeline could
// play (preflight, element creation, linking, state change); those print a
// diagnostic and are never retried. Otherwise the Outcome describes how the
// last session ended. With Restart.MaxRetries > 0 a session ending in a
// runtime error is rebuilt from scratch after a backoff delay.
func (v *Viewer) Run(ctx context.Context) (*Outcome, error) {
	if v.cfg.Preflight.Enabled {
		debug := v.cfg.SlogLevel() <= slog.LevelDebug
		if err := v.preflight(ctx, v.cfg.Location, v.cfg.preflightTimeout(), debug); err != nil {
			v.errorf("%s: %v", ErrPreflight, err)
			return nil, fmt.Errorf("%w: %v", ErrPreflight, err)
		}
	}

	var (
		outcome *Outcome
		state   restart.State
	)

	err := restart.Run(ctx, func(ctx context.Context) error {
		o, err := v.runSession(ctx, state.Restarts)
		if err != nil {
			return restart.Permanent(err)
		}

		outcome = o
		if o.Kind == OutcomeError {
			return o.Err
		}
		return nil
	}, v.cfg.restartConfig(), &state)

	if outcome == nil {
		return nil, err
	}
	outcome.Restarts = state.Restarts

	var rtErr *RuntimeError
	switch {
	case err == nil:
	case errors.As(err, &rtErr):
		if !v.cfg.StrictExit {
			slog.Warn("rtmp-view: pipeline stopped on a runtime error, exiting with success status",
				"error", rtErr.Message,
				"source", rtErr.Source,
			)
		}
	case ctx.Err() != nil:
		// Cancelled while backing off between sessions.
		outcome.Kind = OutcomeInterrupted
		outcome.Err = nil
	default:
		return nil, err
	}

	return outcome, nil
}

// runSession builds, plays and tears down one pipeline
func (v *Viewer) runSession(ctx context.Context, restarts int) (*Outcome, error) {
	s, err := v.build()
	if err != nil {
		return nil, err
	}
	defer s.teardown()

	bus := s.pipeline.Bus()
	if bus == nil {
		v.errorf("%s", msgNotPlaying)
		return nil, fmt.Errorf("%w: pipeline has no bus", ErrStateChange)
	}

	if err := s.pipeline.SetState(media.StatePlaying); err != nil {
		v.errorf("%s", msgNotPlaying)
		s.log.Error("rtmp-view: failed to start pipeline", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStateChange, err)
	}

	s.started = time.Now()
	s.log.Info("rtmp-view: pipeline playing", "location", v.cfg.Location)
	v.publish(s, emitter.Event{Type: emitter.EventSessionStarted})

	outcome := v.wait(ctx, s, bus)
	outcome.SessionID = s.id
	outcome.Restarts = restarts
	outcome.Duration = time.Since(s.started)
	outcome.PadsLinked = int(s.padsLinked.Load())
	outcome.Stats = s.recorder.Summary()
	if s.inspector != nil {
		r := s.inspector.Report()
		outcome.Inspection = &r
	}

	v.publish(s, endedEvent(outcome))
	return outcome, nil
}

// publish is best effort: a broker problem never affects playback
func (v *Viewer) publish(s *session, ev emitter.Event) {
	if v.events == nil {
		return
	}

	ev.SessionID = s.id
	ev.Location = v.cfg.Location
	ev.Timestamp = time.Now()

	if err := v.events.Publish(ev); err != nil {
		s.log.Warn("rtmp-view: failed to publish event", "event", ev.Type, "error", err)
	}
}

func endedEvent(o *Outcome) emitter.Event {
	ev := emitter.Event{
		Type:          emitter.EventSessionEnded,
		Outcome:       o.Kind.String(),
		UptimeSeconds: o.Duration.Seconds(),
		Frames:        o.Stats.Frames,
		FPSMean:       o.Stats.FPSMean,
		Restarts:      o.Restarts,
	}
	if o.Err != nil {
		ev.Error = o.Err.Message
		ev.ErrorCategory = o.Err.Category.String()
	}
	if o.Inspection != nil {
		ev.Width = o.Inspection.Width
		ev.Height = o.Inspection.Height
	}
	return ev
}

// build creates the elements, adds them to a fresh pipeline and wires the
// static and dynamic links. On failure the pipeline has been released.
func (v *Viewer) build() (*session, error) {
	s := &session{
		id:       uuid.New().String(),
		recorder: stats.NewRecorder(stats.DefaultWindow),
	}
	s.log = slog.With("session_id", s.id)

	p, err := v.fw.NewPipeline(v.cfg.PipelineName)
	if err != nil {
		v.errorf("%s", msgElementsNotCreated)
		s.log.Error("rtmp-view: failed to create pipeline", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrElementCreate, err)
	}

	names := v.cfg.Elements
	roles := names.roles()

	elems := make([]media.Element, 0, len(roles))
	var missing []string
	for _, r := range roles {
		e, err := v.fw.MakeElement(r.factory, r.role)
		if err != nil {
			s.log.Error("rtmp-view: element not available", "role", r.role, "factory", r.factory, "error", err)
			missing = append(missing, r.factory)
			continue
		}
		elems = append(elems, e)
	}
	if len(missing) > 0 {
		v.errorf("%s", msgElementsNotCreated)
		p.Release()
		return nil, fmt.Errorf("%w: %s", ErrElementCreate, strings.Join(missing, ", "))
	}

	source, demuxer, parser, decoder, converter, sink := elems[0], elems[1], elems[2], elems[3], elems[4], elems[5]

	if err := p.Add(elems...); err != nil {
		v.errorf("%s", msgElementsNotCreated)
		p.Release()
		return nil, fmt.Errorf("%w: %v", ErrPipelineAdd, err)
	}

	if err := p.Link(source, demuxer); err != nil {
		v.errorf("%s", msgSourceNotLinked)
		s.log.Error("rtmp-view: failed to link source", "error", err)
		p.Release()
		return nil, fmt.Errorf("%w: %s → %s: %v", ErrStaticLink, source.Name(), demuxer.Name(), err)
	}

	if err := p.Link(parser, decoder, converter, sink); err != nil {
		v.errorf("%s", msgChainNotLinked)
		s.log.Error("rtmp-view: failed to link decode chain", "error", err)
		p.Release()
		return nil, fmt.Errorf("%w: %s → %s: %v", ErrStaticLink, parser.Name(), sink.Name(), err)
	}

	sub, err := demuxer.OnPadAdded(func(pad media.Pad) {
		s.onDemuxerPad(pad, parser)
	})
	if err != nil {
		v.errorf("%s", msgSourceNotLinked)
		p.Release()
		return nil, fmt.Errorf("%w: pad-added: %v", ErrStaticLink, err)
	}
	s.padSub = sub

	if err := source.SetProperty("location", v.cfg.Location); err != nil {
		v.errorf("Unable to set source location %s", v.cfg.Location)
		sub.Cancel()
		p.Release()
		return nil, fmt.Errorf("%w: %v", ErrElementConfig, err)
	}

	// Telemetry probes are best effort; playback works without them.
	if err := sink.AddBufferProbe("sink", false, func(buf media.Buffer) {
		s.recorder.Observe(buf.Size)
	}); err != nil {
		s.log.Warn("rtmp-view: failed to add sink probe, continuing without frame statistics", "error", err)
	}

	if v.cfg.Inspect {
		if err := parser.SetProperty("config-interval", -1); err != nil {
			s.log.Warn("rtmp-view: parser does not support config-interval", "error", err)
		}
		in := inspect.New()
		if err := parser.AddBufferProbe("src", true, func(buf media.Buffer) {
			in.Observe(buf.Data)
		}); err != nil {
			s.log.Warn("rtmp-view: failed to add inspection probe, continuing without inspection", "error", err)
		} else {
			s.inspector = in
		}
	}

	s.pipeline = p
	s.log.Debug("rtmp-view: pipeline built",
		"pipeline", p.Name(),
		"source", names.Source,
		"demuxer", names.Demuxer,
		"parser", names.Parser,
		"decoder", names.Decoder,
		"converter", names.Converter,
		"sink", names.Sink,
	)

	return s, nil
}

// wait blocks on the bus until ERROR, EOS or ctx cancellation
func (v *Viewer) wait(ctx context.Context, s *session, bus media.Bus) *Outcome {
	msg, err := bus.Pop(ctx, media.MessageError, media.MessageEOS)
	if err != nil {
		s.log.Info("rtmp-view: interrupted, stopping pipeline", "reason", err)
		return &Outcome{Kind: OutcomeInterrupted}
	}

	switch msg.Type {
	case media.MessageError:
		debug := msg.Debug
		if debug == "" {
			debug = "none"
		}
		v.errorf("Error received from element %s: %s", msg.Source, msg.Text)
		v.errorf("Debugging information: %s", debug)

		rtErr := &RuntimeError{
			Source:   msg.Source,
			Message:  msg.Text,
			Debug:    msg.Debug,
			Category: ClassifyError(msg.Text, msg.Debug),
		}
		s.log.Error("rtmp-view: pipeline error",
			"source", rtErr.Source,
			"error", rtErr.Message,
			"debug", rtErr.Debug,
			"category", rtErr.Category.String(),
			"uptime", time.Since(s.started),
			"frames_rendered", s.recorder.Frames(),
		)
		return &Outcome{Kind: OutcomeError, Err: rtErr}

	case media.MessageEOS:
		fmt.Fprintln(v.out, msgEndOfStream)
		s.log.Info("rtmp-view: end of stream received",
			"uptime", time.Since(s.started),
			"frames_rendered", s.recorder.Frames(),
		)
		return &Outcome{Kind: OutcomeEOS}

	default:
		v.errorf("%s", msgUnknownMessage)
		return &Outcome{Kind: OutcomeUnknown}
	}
}

func (v *Viewer) errorf(format string, args ...any) {
	fmt.Fprintf(v.errOut, format+"\n", args...)
}

// session is one built pipeline and everything attached to it.
// teardown is the only way the pipeline is released once built.
type session struct {
	id         string
	log        *slog.Logger
	pipeline   media.Pipeline
	padSub     media.Subscription
	recorder   *stats.Recorder
	inspector  *inspect.Inspector
	padsLinked atomic.Int32
	started    time.Time
	once       sync.Once
}

// onDemuxerPad links a freshly exposed demuxer pad to the parser.
//
// Runs on a streaming thread. Only the first video pad is linked; audio pads
// and later pads are ignored. A failed link is logged and not retried.
func (s *session) onDemuxerPad(pad media.Pad, parser media.Element) {
	caps := pad.Caps()
	if isNonVideo(pad.Name(), caps) {
		s.log.Info("rtmp-view: ignoring non-video demuxer pad", "pad", pad.Name(), "caps", caps)
		return
	}

	sinkPad, err := parser.StaticPad("sink")
	if err != nil {
		s.log.Error("rtmp-view: failed to get parser sink pad", "error", err)
		return
	}

	if sinkPad.IsLinked() {
		s.log.Warn("rtmp-view: parser already linked, ignoring additional demuxer pad", "pad", pad.Name(), "caps", caps)
		return
	}

	if err := pad.Link(sinkPad); err != nil {
		s.log.Error("rtmp-view: failed to link demuxer pad",
			"src_pad", pad.Name(),
			"sink_pad", sinkPad.Name(),
			"error", err,
		)
		return
	}

	s.padsLinked.Add(1)
	s.log.Info("rtmp-view: demuxer pad linked",
		"src_pad", pad.Name(),
		"sink_pad", sinkPad.Name(),
		"caps", caps,
	)
}

func isNonVideo(padName, caps string) bool {
	if caps != "" {
		return !strings.HasPrefix(caps, "video/")
	}
	return strings.HasPrefix(padName, "audio")
}

func (s *session) teardown() {
	s.once.Do(func() {
		if err := s.pipeline.SetState(media.StateNull); err != nil {
			s.log.Warn("rtmp-view: failed to set pipeline to NULL", "error", err)
		}
		if s.padSub != nil {
			s.padSub.Cancel()
		}
		s.pipeline.Release()

		summary := s.recorder.Summary()
		attrs := []any{
			"frames_rendered", summary.Frames,
			"bytes_rendered", summary.Bytes,
			"fps_mean", summary.FPSMean,
			"fps_stddev", summary.FPSStdDev,
			"jitter_mean_s", summary.JitterMean,
			"stable", summary.IsStable,
		}
		if s.inspector != nil {
			r := s.inspector.Report()
			attrs = append(attrs,
				"access_units", r.AccessUnits,
				"keyframes", r.Keyframes,
				"stream_resolution", fmt.Sprintf("%dx%d", r.Width, r.Height),
			)
		}
		s.log.Info("rtmp-view: pipeline torn down", attrs...)
	})
}
