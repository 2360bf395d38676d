package rtmpview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/rtmp-view/internal/media"
)

// fakeFramework is an in-memory media.Framework.
//
// Every pipeline it creates replays a scripted session: when set to PLAYING
// it emits the configured demuxer pads, pushes buffers through the installed
// probes and makes the scripted bus messages available.
type fakeFramework struct {
	mu sync.Mutex

	missing     map[string]bool // factories that cannot be created
	pipelineErr error
	linkErr     map[string]error // keyed by the name of the first element linked
	playErr     error
	addErr      error
	propErr     error

	demuxerPads   func() []*fakePad
	sinkFrames    int
	parserBuffers [][]byte

	// messages[i] is replayed by the i-th pipeline; the last entry repeats.
	messages [][]*media.Message
	// unfilteredBus makes Pop ignore the requested types, like a bus that
	// delivers a message outside the filter.
	unfilteredBus bool

	pipelines []*fakePipeline
	elements  []*fakeElement
}

func newFakeFramework() *fakeFramework {
	return &fakeFramework{
		missing: map[string]bool{},
		linkErr: map[string]error{},
		demuxerPads: func() []*fakePad {
			return []*fakePad{{name: "video", caps: "video/x-h264, stream-format=(string)avc"}}
		},
		messages: [][]*media.Message{{{Type: media.MessageEOS, Source: "pipeline"}}},
	}
}

func (f *fakeFramework) MakeElement(factory, name string) (media.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.missing[factory] {
		return nil, fmt.Errorf("no such element factory %q", factory)
	}

	e := &fakeElement{
		name:    name,
		factory: factory,
		props:   map[string]any{},
		pads: map[string]*fakePad{
			"sink": {name: "sink"},
			"src":  {name: "src"},
		},
		probes:  map[string][]probe{},
		propErr: f.propErr,
	}
	f.elements = append(f.elements, e)
	return e, nil
}

func (f *fakeFramework) NewPipeline(name string) (media.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pipelineErr != nil {
		return nil, f.pipelineErr
	}

	idx := len(f.pipelines)
	if idx >= len(f.messages) {
		idx = len(f.messages) - 1
	}

	var msgs []*media.Message
	if idx >= 0 {
		msgs = append(msgs, f.messages[idx]...)
	}

	p := &fakePipeline{
		fw:   f,
		name: name,
		bus:  &fakeBus{queue: msgs, unfiltered: f.unfilteredBus},
	}
	f.pipelines = append(f.pipelines, p)
	return p, nil
}

func (f *fakeFramework) pipeline(i int) *fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pipelines[i]
}

func (f *fakeFramework) pipelineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pipelines)
}

type probe struct {
	mapData bool
	fn      func(media.Buffer)
}

type fakeElement struct {
	mu       sync.Mutex
	name     string
	factory  string
	props    map[string]any
	pads     map[string]*fakePad
	handlers []func(media.Pad)
	probes   map[string][]probe
	propErr  error

	subsCancelled int
}

func (e *fakeElement) Name() string    { return e.name }
func (e *fakeElement) Factory() string { return e.factory }

func (e *fakeElement) SetProperty(name string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.propErr != nil {
		return e.propErr
	}
	e.props[name] = value
	return nil
}

func (e *fakeElement) StaticPad(name string) (media.Pad, error) {
	p, ok := e.pads[name]
	if !ok {
		return nil, fmt.Errorf("no pad %q", name)
	}
	return p, nil
}

func (e *fakeElement) OnPadAdded(fn func(media.Pad)) (media.Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handlers = append(e.handlers, fn)
	return &fakeSubscription{elem: e}, nil
}

func (e *fakeElement) AddBufferProbe(pad string, mapData bool, fn func(media.Buffer)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pads[pad]; !ok {
		return fmt.Errorf("no pad %q", pad)
	}
	e.probes[pad] = append(e.probes[pad], probe{mapData: mapData, fn: fn})
	return nil
}

func (e *fakeElement) prop(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.props[name]
}

func (e *fakeElement) emitPad(p media.Pad) {
	e.mu.Lock()
	handlers := append([]func(media.Pad){}, e.handlers...)
	e.mu.Unlock()

	for _, h := range handlers {
		h(p)
	}
}

func (e *fakeElement) push(pad string, data []byte) {
	e.mu.Lock()
	probes := append([]probe{}, e.probes[pad]...)
	e.mu.Unlock()

	for _, pr := range probes {
		buf := media.Buffer{Size: len(data)}
		if pr.mapData {
			buf.Data = data
		}
		pr.fn(buf)
	}
}

type fakeSubscription struct {
	elem *fakeElement
	once sync.Once
}

func (s *fakeSubscription) Cancel() {
	s.once.Do(func() {
		s.elem.mu.Lock()
		s.elem.subsCancelled++
		s.elem.handlers = nil
		s.elem.mu.Unlock()
	})
}

type fakePad struct {
	mu      sync.Mutex
	name    string
	caps    string
	linked  bool
	peer    *fakePad
	linkErr error
}

func (p *fakePad) Name() string { return p.name }
func (p *fakePad) Caps() string { return p.caps }

func (p *fakePad) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.linked
}

func (p *fakePad) Link(sink media.Pad) error {
	sp, ok := sink.(*fakePad)
	if !ok {
		return errors.New("foreign pad")
	}
	if p.linkErr != nil {
		return p.linkErr
	}
	if sp.IsLinked() {
		return errors.New("sink pad already linked")
	}

	p.mu.Lock()
	p.linked, p.peer = true, sp
	p.mu.Unlock()

	sp.mu.Lock()
	sp.linked, sp.peer = true, p
	sp.mu.Unlock()
	return nil
}

type fakePipeline struct {
	fw   *fakeFramework
	name string
	bus  *fakeBus

	mu       sync.Mutex
	added    [][]media.Element
	links    [][]string
	states   []media.State
	released int
}

func (p *fakePipeline) Name() string { return p.name }

func (p *fakePipeline) Add(elements ...media.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fw.addErr != nil {
		return p.fw.addErr
	}
	p.added = append(p.added, elements)
	return nil
}

func (p *fakePipeline) Link(elements ...media.Element) error {
	names := make([]string, 0, len(elements))
	for _, e := range elements {
		names = append(names, e.Name())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.fw.linkErr[names[0]]; err != nil {
		return err
	}
	p.links = append(p.links, names)
	return nil
}

func (p *fakePipeline) SetState(state media.State) error {
	p.mu.Lock()
	p.states = append(p.states, state)
	p.mu.Unlock()

	if state != media.StatePlaying {
		return nil
	}
	if p.fw.playErr != nil {
		return p.fw.playErr
	}

	p.play()
	return nil
}

// play simulates the streaming threads of a pipeline going to PLAYING
func (p *fakePipeline) play() {
	elems := p.elementsByName()

	if demux := elems["demuxer"]; demux != nil && p.fw.demuxerPads != nil {
		for _, pad := range p.fw.demuxerPads() {
			demux.emitPad(pad)
		}
	}

	if sink := elems["sink"]; sink != nil {
		for i := 0; i < p.fw.sinkFrames; i++ {
			sink.push("sink", make([]byte, 64))
		}
	}

	if parser := elems["parser"]; parser != nil {
		for _, buf := range p.fw.parserBuffers {
			parser.push("src", buf)
		}
	}
}

func (p *fakePipeline) elementsByName() map[string]*fakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := map[string]*fakeElement{}
	for _, batch := range p.added {
		for _, e := range batch {
			fe := e.(*fakeElement)
			out[fe.name] = fe
		}
	}
	return out
}

func (p *fakePipeline) Bus() media.Bus { return p.bus }

func (p *fakePipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
}

func (p *fakePipeline) snapshot() (states []media.State, released int, links [][]string, added [][]media.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.State{}, p.states...), p.released, append([][]string{}, p.links...), append([][]media.Element{}, p.added...)
}

type fakeBus struct {
	mu         sync.Mutex
	queue      []*media.Message
	unfiltered bool
}

func (b *fakeBus) Pop(ctx context.Context, types ...media.MessageType) (*media.Message, error) {
	b.mu.Lock()
	for len(b.queue) > 0 {
		msg := b.queue[0]
		b.queue = b.queue[1:]
		if b.unfiltered || matches(msg, types) {
			b.mu.Unlock()
			return msg, nil
		}
	}
	b.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func matches(msg *media.Message, types []media.MessageType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if msg.Type == t {
			return true
		}
	}
	return false
}
