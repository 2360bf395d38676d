// Package rtmpview plays a live RTMP stream on the local display using GStreamer.
//
// The package only assembles and supervises the pipeline. Demuxing, decoding,
// color conversion and rendering are all done by GStreamer plugins; the Go
// side builds the graph, links the demuxer's dynamic pad when it appears,
// waits for a terminal bus message and tears everything down.
//
// # Pipeline
//
//	rtmpsrc → flvdemux ~pad-added~> h264parse → avdec_h264 → videoconvert → autovideosink
//
// The source→demuxer and parser→…→sink links are static. flvdemux only exposes
// its video pad once the FLV header has been parsed, so that link is made from
// the pad-added subscription. Audio pads and any pad beyond the first video
// pad are logged and ignored.
//
// # Quick Start
//
//	fw := gstreamer.Init(nil)
//	defer fw.Close()
//
//	v, err := rtmpview.New(fw, rtmpview.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	outcome, err := v.Run(ctx)
//	os.Exit(rtmpview.ExitCode(outcome, err, false))
//
// # Lifecycle
//
// Run performs, in order:
//
//  1. Optional RTMP preflight (handshake + connect against the location)
//  2. Element creation; any missing factory aborts with "Not all elements
//     could be created."
//  3. Adding every element to the pipeline in one call
//  4. Static links; a failure aborts before PLAYING
//  5. PLAYING, then an unbounded wait for ERROR or EOS on the bus
//  6. Teardown: NULL state and release, exactly once per built pipeline
//
// Cancelling the context (SIGINT/SIGTERM in the CLI) ends the wait early and
// still goes through teardown.
//
// # Exit Codes
//
// ExitCode maps a run to the process exit status:
//
//   - 0: end of stream, interruption, or a runtime pipeline error
//   - -1: element creation, linking, state change or preflight failure
//   - 1: runtime pipeline error when strict exit is enabled
//   - 2: invalid configuration
//
// A runtime error exits 0 by default because teardown completed normally; a
// warning is logged so the condition is never silent.
//
// # Telemetry
//
// A buffer probe on the sink counts rendered frames and measures FPS and
// jitter over a sliding window. With Inspect enabled, the parser output is
// decoded as H.264 to count keyframes and report the SPS resolution. Both
// summaries are part of the Outcome and logged at teardown.
//
// With WithEvents, a session_started event is published once the pipeline
// plays and a session_ended event after the wait. The CLI backs this with the
// MQTT emitter in internal/emitter.
//
// # Dependencies
//
// GStreamer 1.x with the good, bad and libav plugin sets:
//
//	sudo apt-get install \
//	    gstreamer1.0-tools \
//	    gstreamer1.0-plugins-base \
//	    gstreamer1.0-plugins-good \
//	    gstreamer1.0-plugins-bad \
//	    gstreamer1.0-libav
//
// Verify the factories:
//
//	gst-inspect-1.0 rtmpsrc flvdemux h264parse avdec_h264
package rtmpview
