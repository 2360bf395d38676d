// Package inspect looks inside the H.264 access units leaving the parser.
//
// It never alters the stream: buffers are parsed read-only and only counters
// plus the last seen SPS are kept.
package inspect

import (
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// Report summarizes the inspected stream
type Report struct {
	AccessUnits uint64
	Keyframes   uint64
	SPSCount    uint64
	PPSCount    uint64
	Malformed   uint64
	Width       int
	Height      int
	FPS         float64 // From SPS timing info, 0 if absent
}

// Inspector accumulates a Report from parser output buffers.
// Safe for use from a streaming thread while Report is read elsewhere.
type Inspector struct {
	mu     sync.Mutex
	report Report
}

// New creates an empty inspector
func New() *Inspector {
	return &Inspector{}
}

// Observe parses one access unit.
//
// h264parse emits length-prefixed (AVC) units when fed from flvdemux and
// Annex-B units otherwise, so both framings are accepted.
func (in *Inspector) Observe(buf []byte) {
	nalus, ok := split(buf)

	in.mu.Lock()
	defer in.mu.Unlock()

	if !ok {
		in.report.Malformed++
		return
	}

	in.report.AccessUnits++
	if h264.IsRandomAccess(nalus) {
		in.report.Keyframes++
	}

	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}

		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			in.report.SPSCount++
			var sps h264.SPS
			if err := sps.Unmarshal(nalu); err == nil {
				in.report.Width = sps.Width()
				in.report.Height = sps.Height()
				in.report.FPS = sps.FPS()
			}

		case h264.NALUTypePPS:
			in.report.PPSCount++
		}
	}
}

// Report returns a copy of the current report
func (in *Inspector) Report() Report {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.report
}

func split(buf []byte) ([][]byte, bool) {
	if len(buf) == 0 {
		return nil, false
	}

	var avcc h264.AVCC
	if err := avcc.Unmarshal(buf); err == nil && len(avcc) > 0 {
		return avcc, true
	}

	var annexb h264.AnnexB
	if err := annexb.Unmarshal(buf); err == nil && len(annexb) > 0 {
		return annexb, true
	}

	return nil, false
}
