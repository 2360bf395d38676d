package gstreamer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/media"
)

// element wraps a *gst.Element
type element struct {
	elem    *gst.Element
	factory string
}

func (e *element) Name() string    { return e.elem.GetName() }
func (e *element) Factory() string { return e.factory }

func (e *element) SetProperty(name string, value any) error {
	if err := e.elem.SetProperty(name, value); err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", e.factory, name, err)
	}
	return nil
}

func (e *element) StaticPad(name string) (media.Pad, error) {
	p := e.elem.GetStaticPad(name)
	if p == nil {
		return nil, fmt.Errorf("%s has no static pad %q", e.Name(), name)
	}
	return &pad{pad: p}, nil
}

// OnPadAdded connects fn to the element's "pad-added" signal.
//
// Elements such as flvdemux and rtspsrc only expose their source pads once the
// stream content is known, so downstream links have to be made from this
// callback. GStreamer serializes the emissions per element.
func (e *element) OnPadAdded(fn func(p media.Pad)) (media.Subscription, error) {
	handle, err := e.elem.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		slog.Debug("gstreamer: pad-added signal received",
			"element", self.GetName(),
			"pad", srcPad.GetName(),
		)
		fn(&pad{pad: srcPad})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect pad-added on %s: %w", e.Name(), err)
	}

	return &signalSubscription{elem: e.elem, handle: handle}, nil
}

// AddBufferProbe installs a buffer probe on a static pad.
//
// The callback runs on the streaming thread for every buffer. With mapData,
// Buffer.Data is a Go copy of the mapped memory, so fn may keep it.
func (e *element) AddBufferProbe(padName string, mapData bool, fn func(buf media.Buffer)) error {
	srcPad := e.elem.GetStaticPad(padName)
	if srcPad == nil {
		return fmt.Errorf("failed to get %s pad from %s", padName, e.Name())
	}

	srcPad.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		buffer := info.GetBuffer()
		if buffer == nil {
			return gst.PadProbeOK
		}

		if !mapData {
			fn(media.Buffer{Size: int(buffer.GetSize())})
			return gst.PadProbeOK
		}

		mapInfo := buffer.Map(gst.MapRead)
		if mapInfo == nil {
			slog.Debug("gstreamer: buffer could not be mapped", "element", e.Name(), "pad", padName)
			fn(media.Buffer{Size: int(buffer.GetSize())})
			return gst.PadProbeOK
		}
		data := mapInfo.Bytes()
		buffer.Unmap()
		fn(media.Buffer{Size: len(data), Data: data})

		return gst.PadProbeOK
	})

	slog.Debug("gstreamer: buffer probe installed", "element", e.Name(), "pad", padName)
	return nil
}

// signalSubscription disconnects a signal handler exactly once
type signalSubscription struct {
	elem   *gst.Element
	handle glib.SignalHandle
	once   sync.Once
}

func (s *signalSubscription) Cancel() {
	s.once.Do(func() {
		s.elem.HandlerDisconnect(s.handle)
	})
}

// pad wraps a *gst.Pad
type pad struct {
	pad *gst.Pad
}

func (p *pad) Name() string { return p.pad.GetName() }

func (p *pad) Caps() string {
	caps := p.pad.GetCurrentCaps()
	if caps == nil {
		return ""
	}
	return caps.String()
}

func (p *pad) IsLinked() bool { return p.pad.IsLinked() }

func (p *pad) Link(sink media.Pad) error {
	other, ok := sink.(*pad)
	if !ok {
		return fmt.Errorf("cannot link %s to foreign pad %T", p.Name(), sink)
	}

	if ret := p.pad.Link(other.pad); ret != gst.PadLinkOK {
		return fmt.Errorf("failed to link %s to %s: %s", p.Name(), other.Name(), ret.String())
	}
	return nil
}

// unwrap converts media elements back to go-gst elements
func unwrap(elements []media.Element) ([]*gst.Element, error) {
	out := make([]*gst.Element, 0, len(elements))
	for _, e := range elements {
		ge, ok := e.(*element)
		if !ok {
			return nil, fmt.Errorf("foreign element %T", e)
		}
		out = append(out, ge.elem)
	}
	return out, nil
}
