// Package gstreamer implements the media contract on top of GStreamer through
// go-gst.
//
// Requires the gstreamer1.0 runtime plus the plugins providing the configured
// factories (rtmpsrc and flvdemux from -good/-bad, h264parse from -bad,
// avdec_h264 from -libav).
package gstreamer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/media"
)

// Framework is the process-wide GStreamer handle.
//
// It is created once with Init and shut down once with Close. Everything that
// needs GStreamer receives the handle explicitly instead of relying on the
// library's global state.
type Framework struct {
	mu     sync.Mutex
	closed bool
}

var initOnce sync.Once

// Init initializes GStreamer and returns the framework handle.
//
// args may be nil. When non-nil, GStreamer consumes its reserved options
// (--gst-debug, --gst-plugin-path, ...) and *args is left with the rest, so
// the caller can parse its own flags afterwards.
func Init(args *[]string) *Framework {
	initOnce.Do(func() {
		gst.Init(args)
		slog.Debug("gstreamer: initialized")
	})
	return &Framework{}
}

// MakeElement resolves a factory from the registry and instantiates it
func (f *Framework) MakeElement(factory, name string) (media.Element, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	var (
		elem *gst.Element
		err  error
	)
	if name == "" {
		elem, err = gst.NewElement(factory)
	} else {
		elem, err = gst.NewElementWithName(factory, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", factory, err)
	}

	return &element{elem: elem, factory: factory}, nil
}

// NewPipeline creates an empty pipeline container
func (f *Framework) NewPipeline(name string) (media.Pipeline, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}

	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	return &pipeline{pipeline: p}, nil
}

// Close shuts the framework down. Every pipeline must have been released
// before. Safe to call more than once.
func (f *Framework) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true

	gst.Deinit()
	slog.Debug("gstreamer: deinitialized")
}

func (f *Framework) checkOpen() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("gstreamer: framework already closed")
	}
	return nil
}
