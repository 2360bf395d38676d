package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yutopp/go-rtmp"
	"github.com/yutopp/go-rtmp/handshake"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name     string
		location string
		want     Target
		wantErr  bool
	}{
		{
			name:     "default location",
			location: "rtmp://localhost:1935/stream/video",
			want: Target{
				Addr:   "localhost:1935",
				App:    "stream",
				Stream: "video",
				TCURL:  "rtmp://localhost:1935/stream",
			},
		},
		{
			name:     "implicit port",
			location: "rtmp://media.example.com/live/cam-1",
			want: Target{
				Addr:   "media.example.com:1935",
				App:    "live",
				Stream: "cam-1",
				TCURL:  "rtmp://media.example.com/live",
			},
		},
		{
			name:     "nested stream key",
			location: "rtmp://10.0.0.2:1936/app/a/b",
			want: Target{
				Addr:   "10.0.0.2:1936",
				App:    "app",
				Stream: "a/b",
				TCURL:  "rtmp://10.0.0.2:1936/app",
			},
		},
		{name: "wrong scheme", location: "rtsp://localhost/stream", wantErr: true},
		{name: "no host", location: "rtmp:///stream/video", wantErr: true},
		{name: "no app", location: "rtmp://localhost:1935", wantErr: true},
		{name: "garbage", location: "://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type acceptHandler struct {
	rtmp.DefaultHandler
}

// startServer runs an in-process RTMP server and returns its address
func startServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rtmp.NewServer(&rtmp.ServerConfig{
		OnConnect: func(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
			return conn, &rtmp.ConnConfig{
				Handler: &acceptHandler{},
				ControlState: rtmp.StreamControlStateConfig{
					DefaultBandwidthWindowSize: 6 * 1024 * 1024,
				},
				Logger: newLogger(false),
			}
		},
	})
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	return ln.Addr().String()
}

func TestCheck_Reachable(t *testing.T) {
	addr := startServer(t)

	err := Check(context.Background(), fmt.Sprintf("rtmp://%s/stream/video", addr), 3*time.Second, false)
	assert.NoError(t, err)
}

func TestCheck_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = Check(context.Background(), fmt.Sprintf("rtmp://%s/stream/video", addr), time.Second, false)
	assert.Error(t, err)
}

func TestCheck_SilentServerTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	started := time.Now()
	err = Check(context.Background(), fmt.Sprintf("rtmp://%s/stream/video", ln.Addr()), 200*time.Millisecond, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestCheck_InvalidLocation(t *testing.T) {
	err := Check(context.Background(), "http://localhost/stream", time.Second, false)
	assert.Error(t, err)
}

// A server that completes the handshake but never answers connect must not
// keep the client socket open once the check has given up.
func TestCheck_UnansweredConnectClosesSocket(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	serverDone := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			serverDone <- err
			return
		}
		defer c.Close()

		if err := handshake.HandshakeWithClient(c, c, &handshake.Config{}); err != nil {
			serverDone <- fmt.Errorf("handshake: %w", err)
			return
		}
		// Swallow the connect command and wait for the client to hang up.
		_, err = io.Copy(io.Discard, c)
		serverDone <- err
	}()

	err = Check(context.Background(), fmt.Sprintf("rtmp://%s/stream/video", ln.Addr()), 200*time.Millisecond, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	select {
	case err := <-serverDone:
		if err != nil {
			assert.NotContains(t, err.Error(), "handshake:")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client socket still open 2s after Check returned")
	}
}
