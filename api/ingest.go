// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Ingester accepts producer connections and turns their byte stream into
// samples. Producers are served one at a time: the next connection is
// accepted once the current one is gone.
type Ingester struct {
	Addr         string
	IdleTimeout  time.Duration
	MaxFrameSize int
	Sink         func(context.Context, Sample)
}

func (in *Ingester) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", in.Addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %v: %w", in.Addr, err)
	}
	return in.Serve(ctx, ln)
}

// Serve runs the accept loop on ln until ctx is done. ln is closed on
// return.
func (in *Ingester) Serve(ctx context.Context, ln net.Listener) error {
	logf("accepting producers on %v", ln.Addr())
	defer logf("producer listener on %v closed", ln.Addr())

	var (
		mu     sync.Mutex
		active net.Conn
	)
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
		mu.Lock()
		if active != nil {
			active.Close()
		}
		mu.Unlock()
	})
	defer stop()
	defer ln.Close()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				errorf("accept error: %v, retrying in %v", err, delay)
				t := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					t.Stop()
					return nil
				case <-t.C:
				}
				continue
			}
			return fmt.Errorf("unable to accept producer: %w", err)
		}
		delay = 0

		mu.Lock()
		active = conn
		mu.Unlock()
		// The listener may have been closed between Accept and here.
		if ctx.Err() != nil {
			conn.Close()
			return nil
		}

		in.handleConn(ctx, conn)

		mu.Lock()
		active = nil
		mu.Unlock()
	}
}

func (in *Ingester) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	producerConnections.Inc()
	logf("producer connected from %v", conn.RemoteAddr())

	var r io.Reader = conn
	if in.IdleTimeout > 0 {
		r = &deadlineReader{conn: conn, timeout: in.IdleTimeout}
	}
	if err := in.read(ctx, r); err != nil {
		errorf("producer %v: %v", conn.RemoteAddr(), err)
		return
	}
	logf("producer %v disconnected", conn.RemoteAddr())
}

// read consumes r until it ends. A clean end of stream, or a stream
// interrupted because ctx is done, returns nil.
func (in *Ingester) read(ctx context.Context, r io.Reader) error {
	fr := NewFramer(r, in.MaxFrameSize)
	for {
		frame, err := fr.Next()
		if err != nil {
			switch {
			case errors.Is(err, ErrFrameTooLarge):
				decodeErrors.WithLabelValues("too_large").Inc()
				errorf("%v, skipping", err)
				continue
			case errors.Is(err, io.EOF), ctx.Err() != nil:
				return nil
			case errors.Is(err, os.ErrDeadlineExceeded):
				return fmt.Errorf("idle for more than %v", in.IdleTimeout)
			}
			return fmt.Errorf("unable to read from producer: %w", err)
		}

		s, err := DecodeSample(frame)
		if err != nil {
			decodeErrors.WithLabelValues("invalid").Inc()
			errorf("%v: %s", err, frame)
			continue
		}
		samplesReceived.Inc()
		debugf("<--- %s", frame)
		if in.Sink != nil {
			in.Sink(ctx, s)
		}
	}
}

type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.conn.Read(p)
}
