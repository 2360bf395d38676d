// Package media defines the contract between the viewer and the multimedia
// framework that actually moves bytes.
//
// The viewer only assembles and supervises a pipeline. Element instantiation,
// pad negotiation, bus messaging and state management belong to the framework,
// which is reached exclusively through the interfaces below. The production
// implementation lives in internal/gstreamer; tests use an in-memory fake.
package media

import (
	"context"
	"fmt"
)

// State is the lifecycle state of a pipeline
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

// String returns the framework-style name of the state
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MessageType identifies the kind of bus message
type MessageType int

const (
	MessageOther MessageType = iota
	MessageError
	MessageEOS
)

// String returns a human-readable name for the message type
func (t MessageType) String() string {
	switch t {
	case MessageError:
		return "error"
	case MessageEOS:
		return "eos"
	default:
		return "other"
	}
}

// Message is an immutable bus notification.
//
// Text and Debug are only populated for MessageError. Debug may be empty when
// the emitting element attached no debugging information.
type Message struct {
	Type   MessageType
	Source string
	Text   string
	Debug  string
}

// Buffer is the view of a media buffer handed to a probe.
// Data is nil unless the probe asked for mapped contents.
type Buffer struct {
	Size int
	Data []byte
}

// Subscription is a cancellable event registration
type Subscription interface {
	Cancel()
}

// Pad is a typed connection point on an element
type Pad interface {
	Name() string
	// Caps returns the negotiated caps as a string, or "" if not yet known.
	Caps() string
	IsLinked() bool
	// Link connects this (source) pad to the given sink pad.
	Link(sink Pad) error
}

// Element is a single processing stage
type Element interface {
	Name() string
	Factory() string
	SetProperty(name string, value any) error
	StaticPad(name string) (Pad, error)
	// OnPadAdded subscribes fn to dynamic pad creation. fn runs on a
	// framework streaming thread and must return quickly.
	OnPadAdded(fn func(pad Pad)) (Subscription, error)
	// AddBufferProbe calls fn for every buffer that flows through the named
	// static pad. When mapData is false Buffer.Data is left nil.
	AddBufferProbe(pad string, mapData bool, fn func(buf Buffer)) error
}

// Bus delivers asynchronous pipeline notifications
type Bus interface {
	// Pop blocks until a message of one of the given types arrives or ctx is
	// done. With no types, any message is returned.
	Pop(ctx context.Context, types ...MessageType) (*Message, error)
}

// Pipeline owns a set of elements and their collective state
type Pipeline interface {
	Name() string
	// Add transfers ownership of the elements to the pipeline in one step.
	Add(elements ...Element) error
	// Link statically links the elements in order. Every element must already
	// have been added.
	Link(elements ...Element) error
	SetState(state State) error
	Bus() Bus
	// Release drops the pipeline reference. The framework releases all
	// contained elements with it.
	Release()
}

// Framework is the process-wide handle to the multimedia framework
type Framework interface {
	// MakeElement instantiates an element from the named factory. An empty
	// name lets the framework pick a unique one.
	MakeElement(factory, name string) (Element, error)
	NewPipeline(name string) (Pipeline, error)
}
