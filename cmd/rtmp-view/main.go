package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	rtmpview "github.com/e7canasta/orion-care-sensor/modules/rtmp-view"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/gstreamer"
)

// Version information
const version = "v0.1.0"

func main() {
	os.Exit(run())
}

// run returns the process exit status so deferred cleanup happens before
// os.Exit.
func run() int {
	// GStreamer strips its own --gst-* options from args.
	args := os.Args
	fw := gstreamer.Init(&args)
	defer fw.Close()

	fs := flag.NewFlagSet("rtmp-view", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file (optional)")
	location := fs.String("location", rtmpview.DefaultLocation, "RTMP URL to play")
	preflight := fs.Bool("preflight", false, "Check the RTMP server with a connect handshake before building the pipeline")
	preflightTimeout := fs.Duration("preflight-timeout", 5*time.Second, "Preflight handshake timeout")
	inspect := fs.Bool("inspect", false, "Inspect the H.264 elementary stream (keyframes, SPS resolution)")
	eventsBroker := fs.String("events-broker", "", "MQTT broker (host:port) for session events (optional)")
	restarts := fs.Int("restart", 0, "Rebuild the pipeline up to N times after a runtime error")
	strictExit := fs.Bool("strict-exit", false, "Exit with status 1 when the pipeline stops on an error")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: rtmp-view [flags] [--gst-* options]\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  rtmp-view\n")
		fmt.Fprintf(os.Stderr, "  rtmp-view --location rtmp://192.168.1.100/live/cam1 --preflight\n")
		fmt.Fprintf(os.Stderr, "  rtmp-view --config rtmp-view.yaml --restart 5 --gst-debug=flvdemux:5\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return rtmpview.ExitOK
		}
		return rtmpview.ExitConfig
	}

	if *showVersion {
		fmt.Printf("rtmp-view %s\n", version)
		return rtmpview.ExitOK
	}

	cfg := rtmpview.DefaultConfig()
	if *configPath != "" {
		loaded, err := rtmpview.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return rtmpview.ExitConfig
		}
		cfg = loaded
	}

	// Flags given explicitly override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "location":
			cfg.Location = *location
		case "preflight":
			cfg.Preflight.Enabled = *preflight
		case "preflight-timeout":
			cfg.Preflight.TimeoutMS = int(*preflightTimeout / time.Millisecond)
		case "inspect":
			cfg.Inspect = *inspect
		case "events-broker":
			cfg.Events.Broker = *eventsBroker
		case "restart":
			cfg.Restart.MaxRetries = *restarts
		case "strict-exit":
			cfg.StrictExit = *strictExit
		case "debug":
			if *debug {
				cfg.LogLevel = "debug"
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return rtmpview.ExitConfig
	}

	// Logs go to stderr; stdout carries only the end-of-stream notice.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []rtmpview.Option
	if cfg.Events.Broker != "" {
		events := emitter.New(cfg.EmitterConfig())
		if err := events.Connect(ctx); err != nil {
			logger.Warn("rtmp-view: session events disabled", "broker", cfg.Events.Broker, "error", err)
		} else {
			defer events.Disconnect()
			opts = append(opts, rtmpview.WithEvents(events))
		}
	}

	viewer, err := rtmpview.New(fw, cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return rtmpview.ExitCode(nil, err, cfg.StrictExit)
	}

	logger.Info("rtmp-view starting",
		"version", version,
		"location", cfg.Location,
		"preflight", cfg.Preflight.Enabled,
		"inspect", cfg.Inspect,
		"max_restarts", cfg.Restart.MaxRetries,
	)

	outcome, err := viewer.Run(ctx)
	if err != nil {
		logger.Error("rtmp-view: pipeline could not start", "error", err)
		return rtmpview.ExitCode(nil, err, cfg.StrictExit)
	}

	logger.Info("rtmp-view stopped",
		"outcome", outcome.Kind.String(),
		"session_id", outcome.SessionID,
		"duration", outcome.Duration,
		"restarts", outcome.Restarts,
		"frames_rendered", outcome.Stats.Frames,
		"fps_mean", outcome.Stats.FPSMean,
	)

	return rtmpview.ExitCode(outcome, nil, cfg.StrictExit)
}
