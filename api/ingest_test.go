// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type ingestHarness struct {
	addr    string
	samples chan Sample
	cancel  context.CancelFunc
	done    chan error
}

func startIngester(t *testing.T, idle time.Duration) *ingestHarness {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return serveIngester(ln, idle)
}

func serveIngester(ln net.Listener, idle time.Duration) *ingestHarness {
	h := &ingestHarness{
		addr:    ln.Addr().String(),
		samples: make(chan Sample, 16),
		done:    make(chan error, 1),
	}
	in := &Ingester{
		IdleTimeout: idle,
		Sink: func(ctx context.Context, s Sample) {
			h.samples <- s
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- in.Serve(ctx, ln) }()
	return h
}

func (h *ingestHarness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ingester did not stop")
	}
}

func (h *ingestHarness) next(t *testing.T) Sample {
	t.Helper()
	select {
	case s := <-h.samples:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("no sample received")
		return Sample{}
	}
}

func TestIngesterDecodesFragmentedStream(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startIngester(t, 0)
	defer h.stop(t)

	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()

	// One object split across writes, then two in one write, with a
	// broken one in between.
	for _, chunk := range []string{
		`{"time":1,"over`,
		`Time":0.5}`,
		"{\"time\":2}\n{\"oops\":true}\n{\"time\":3,\"curvature\":1}",
	} {
		_, err := conn.Write([]byte(chunk))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	s := h.next(t)
	assert.Equal(t, 1.0, s.Time)
	assert.Equal(t, 0.5, s.OverTime)
	assert.Equal(t, 2.0, h.next(t).Time)
	s = h.next(t)
	assert.Equal(t, 3.0, s.Time)
	assert.Equal(t, 1.0, s.Curvature)
}

func TestIngesterAcceptsNextProducer(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startIngester(t, 0)
	defer h.stop(t)

	first, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	_, err = first.Write([]byte(`{"time":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, h.next(t).Time)
	require.NoError(t, first.Close())

	second, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer second.Close()
	_, err = second.Write([]byte(`{"time":0.5}`))
	require.NoError(t, err)
	assert.Equal(t, 0.5, h.next(t).Time)
}

func TestIngesterDropsIdleProducer(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startIngester(t, 50*time.Millisecond)
	defer h.stop(t)

	idle, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer idle.Close()

	// The idle producer is dropped, so the next one gets served.
	next, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer next.Close()
	_, err = next.Write([]byte(`{"time":7}`))
	require.NoError(t, err)
	assert.Equal(t, 7.0, h.next(t).Time)
}

func TestIngesterStopsWithActiveProducer(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startIngester(t, 0)

	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"time":1}`))
	require.NoError(t, err)
	h.next(t)

	h.stop(t)
}

type tempError struct{}

func (tempError) Error() string   { return "too many open files" }
func (tempError) Timeout() bool   { return false }
func (tempError) Temporary() bool { return true }

// flakyListener fails its first accepts with a temporary error.
type flakyListener struct {
	net.Listener
	failures int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures > 0 {
		l.failures--
		return nil, tempError{}
	}
	return l.Listener.Accept()
}

func TestIngesterRetriesTemporaryAcceptErrors(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h := serveIngester(&flakyListener{Listener: ln, failures: 3}, 0)
	defer h.stop(t)

	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(`{"time":4}`))
	require.NoError(t, err)
	assert.Equal(t, 4.0, h.next(t).Time)
}

func TestIngesterListenError(t *testing.T) {
	in := &Ingester{Addr: "127.0.0.1:-1"}
	assert.Error(t, in.ListenAndServe(context.Background()))
}
