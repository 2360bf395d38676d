package gstreamer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/media"
)

// pipeline wraps a *gst.Pipeline
type pipeline struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
}

func (p *pipeline) Name() string {
	gp, err := p.get()
	if err != nil {
		return ""
	}
	return gp.GetName()
}

func (p *pipeline) Add(elements ...media.Element) error {
	gp, err := p.get()
	if err != nil {
		return err
	}

	elems, err := unwrap(elements)
	if err != nil {
		return err
	}
	if err := gp.AddMany(elems...); err != nil {
		return fmt.Errorf("failed to add elements to %s: %w", gp.GetName(), err)
	}
	return nil
}

func (p *pipeline) Link(elements ...media.Element) error {
	if _, err := p.get(); err != nil {
		return err
	}

	elems, err := unwrap(elements)
	if err != nil {
		return err
	}

	if len(elems) == 2 {
		return elems[0].Link(elems[1])
	}
	return gst.ElementLinkMany(elems...)
}

func (p *pipeline) SetState(state media.State) error {
	gp, err := p.get()
	if err != nil {
		return err
	}

	if err := gp.SetState(toGstState(state)); err != nil {
		return fmt.Errorf("failed to set %s to %s: %w", gp.GetName(), state, err)
	}
	return nil
}

func (p *pipeline) Bus() media.Bus {
	gp, err := p.get()
	if err != nil {
		return nil
	}
	return &bus{bus: gp.GetPipelineBus()}
}

// Release drops our reference. go-gst owns the underlying refcount through a
// finalizer, so the last Go reference going away is what unrefs the
// pipeline and, with it, every element it contains.
func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline == nil {
		return
	}
	slog.Debug("gstreamer: pipeline released", "pipeline", p.pipeline.GetName())
	p.pipeline = nil
}

func (p *pipeline) get() (*gst.Pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pipeline == nil {
		return nil, fmt.Errorf("pipeline already released")
	}
	return p.pipeline, nil
}

func toGstState(s media.State) gst.State {
	switch s {
	case media.StateReady:
		return gst.StateReady
	case media.StatePaused:
		return gst.StatePaused
	case media.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}
