// Package preflight checks that an RTMP endpoint accepts connections before a
// pipeline is built around it.
//
// A failed rtmpsrc only reports "Could not open resource for reading" once
// the pipeline is already PLAYING; probing first turns that into an explicit,
// categorized startup failure.
package preflight

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"
)

const (
	// DefaultPort is the RTMP port used when the location omits one
	DefaultPort = "1935"

	// DefaultTimeout bounds dial + handshake + connect
	DefaultTimeout = 5 * time.Second

	flashVer = "FMLE/3.0 (compatible; rtmp-view)"
)

// Target is a parsed RTMP location
type Target struct {
	Addr   string // host:port
	App    string
	Stream string
	TCURL  string // rtmp://host[:port]/app
}

// ParseLocation splits an rtmp:// URL into its connect parameters.
//
// The first path segment is the application, the remainder the stream key:
// rtmp://localhost:1935/stream/video → app "stream", stream "video".
func ParseLocation(location string) (Target, error) {
	u, err := url.Parse(location)
	if err != nil {
		return Target{}, fmt.Errorf("preflight: invalid location %q: %w", location, err)
	}
	if u.Scheme != "rtmp" {
		return Target{}, fmt.Errorf("preflight: unsupported scheme %q (only rtmp)", u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, fmt.Errorf("preflight: location %q has no host", location)
	}

	port := u.Port()
	if port == "" {
		port = DefaultPort
	}

	path := strings.Trim(u.Path, "/")
	app, stream, _ := strings.Cut(path, "/")
	if app == "" {
		return Target{}, fmt.Errorf("preflight: location %q has no application", location)
	}

	return Target{
		Addr:   net.JoinHostPort(u.Hostname(), port),
		App:    app,
		Stream: stream,
		TCURL:  fmt.Sprintf("rtmp://%s/%s", u.Host, app),
	}, nil
}

// Check dials the target, performs the RTMP handshake and sends connect.
//
// The connection is closed before returning. ctx cancellation aborts an
// in-flight attempt; timeout <= 0 means DefaultTimeout.
func Check(ctx context.Context, location string, timeout time.Duration, debug bool) error {
	target, err := ParseLocation(location)
	if err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()

	// go-rtmp handshakes inside Dial without honoring deadlines, so the whole
	// exchange runs aside and the caller only waits for ctx.
	done := make(chan error, 1)
	go func() {
		done <- connect(ctx, target, timeout, debug)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return fmt.Errorf("preflight: connect app %q at %s: %w", target.App, target.Addr, ctx.Err())
	}

	slog.Info("preflight: RTMP endpoint reachable",
		"addr", target.Addr,
		"app", target.App,
		"stream", target.Stream,
		"elapsed", time.Since(started),
	)
	return nil
}

func connect(ctx context.Context, target Target, timeout time.Duration, debug bool) error {
	dialer := &net.Dialer{Timeout: timeout}
	client, err := rtmp.DialWithDialer(dialer, "rtmp", target.Addr, &rtmp.ConnConfig{
		Logger: newLogger(debug),
	})
	if err != nil {
		return fmt.Errorf("preflight: dial %s: %w", target.Addr, err)
	}
	defer client.Close()

	// Connect waits for the reply without a deadline. Closing the connection
	// on ctx expiry releases the socket; the go-rtmp goroutine waiting on the
	// transaction stays parked until process exit.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			slog.Debug("preflight: closing RTMP connection after cancellation", "addr", target.Addr)
			client.Close()
		case <-stop:
		}
	}()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	err = client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      target.App,
			Type:     "nonprivate",
			FlashVer: flashVer,
			TCURL:    target.TCURL,
		},
	})
	if err != nil {
		return fmt.Errorf("preflight: connect app %q at %s: %w", target.App, target.Addr, err)
	}
	return nil
}

// newLogger returns the logrus logger go-rtmp writes its chatter to.
// It stays silent unless debug logging was requested.
func newLogger(debug bool) logrus.FieldLogger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetOutput(io.Discard)
	}
	return l
}
