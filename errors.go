package rtmpview

import (
	"errors"
	"fmt"
	"strings"
)

// Exit codes returned by ExitCode
const (
	ExitOK           = 0
	ExitRuntimeError = 1
	ExitConfig       = 2
	ExitFailure      = -1
)

// Construction-phase failures. They are never retried.
var (
	ErrConfig        = errors.New("invalid configuration")
	ErrPreflight     = errors.New("RTMP preflight failed")
	ErrElementCreate = errors.New("element creation failed")
	ErrElementConfig = errors.New("element configuration failed")
	ErrPipelineAdd   = errors.New("adding elements to pipeline failed")
	ErrStaticLink    = errors.New("static link failed")
	ErrStateChange   = errors.New("state change failed")
)

// ErrorCategory represents the classification of pipeline errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates network-related failures (connection, timeout, DNS)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates codec/stream failures (decode errors, format issues)
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication/authorization failures
	ErrCategoryAuth
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// RuntimeError is an error posted on the bus by a running element
type RuntimeError struct {
	Source   string
	Message  string
	Debug    string
	Category ErrorCategory
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("pipeline error [%s] from %s: %s", e.Category, e.Source, e.Message)
}

// ExitCode maps the result of Run to a process exit status.
//
// A runtime error leaves the process with ExitOK unless strict is set: the
// pipeline was still torn down normally.
func ExitCode(outcome *Outcome, err error, strict bool) int {
	if err != nil {
		if errors.Is(err, ErrConfig) {
			return ExitConfig
		}
		return ExitFailure
	}

	if outcome != nil && outcome.Kind == OutcomeError && strict {
		return ExitRuntimeError
	}
	return ExitOK
}

// ClassifyError categorizes a bus error from its message and debug text.
//
// Priority: auth, then codec, then network. rtmpsrc reports most connection
// problems as "Could not open resource for reading", hence the resource
// keywords in the network set.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

var authKeywords = []string{
	"unauthorized",
	"401",
	"403",
	"forbidden",
	"authentication",
	"credentials",
	"password",
	"username",
}

var codecKeywords = []string{
	"codec",
	"decode",
	"encode",
	"format",
	"negotiation",
	"not-negotiated",
	"not negotiated",
	"caps",
	"h264",
	"avc",
	"flv",
	"demux",
	"no decoder",
	"missing plugin",
}

var networkKeywords = []string{
	"connection",
	"timeout",
	"timed out",
	"unreachable",
	"network",
	"dns",
	"resolve",
	"socket",
	"tcp",
	"rtmp",
	"could not open resource",
	"could not connect",
	"failed to connect",
	"not found",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
