package gstreamer

import (
	"context"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/media"
)

// pollInterval bounds how long a single bus pop blocks, so a cancelled
// context is noticed promptly while the overall wait stays unbounded.
const pollInterval = 50 * time.Millisecond

// bus wraps a *gst.Bus
type bus struct {
	bus *gst.Bus
}

// Pop waits for the next message matching types.
//
// Returns ctx.Err() once the context is done. There is no other timeout.
func (b *bus) Pop(ctx context.Context, types ...media.MessageType) (*media.Message, error) {
	filter := toGstMessageFilter(types)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		msg := b.bus.TimedPopFiltered(pollInterval, filter)
		if msg == nil {
			continue
		}

		return convertMessage(msg), nil
	}
}

func toGstMessageFilter(types []media.MessageType) gst.MessageType {
	if len(types) == 0 {
		return gst.MessageAny
	}

	var filter gst.MessageType
	for _, t := range types {
		switch t {
		case media.MessageError:
			filter |= gst.MessageError
		case media.MessageEOS:
			filter |= gst.MessageEOS
		default:
			return gst.MessageAny
		}
	}
	return filter
}

func convertMessage(msg *gst.Message) *media.Message {
	out := &media.Message{Source: msg.Source()}

	switch msg.Type() {
	case gst.MessageEOS:
		out.Type = media.MessageEOS

	case gst.MessageError:
		out.Type = media.MessageError
		if gerr := msg.ParseError(); gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}

	default:
		out.Type = media.MessageOther
	}

	return out
}
