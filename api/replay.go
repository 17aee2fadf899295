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
	"time"
)

// Replay copies the samples read from r to w, newline terminated, waiting
// between them so that they leave at the pace given by their time field.
// speed scales the pace: 2 replays twice as fast, 0 does not wait at all.
// A time going back starts a new session, paced from that sample on.
// Invalid frames are skipped. It returns the number of samples written.
func Replay(ctx context.Context, w io.Writer, r io.Reader, speed float64) (int, error) {
	fr := NewFramer(r, 0)
	start := time.Now()
	first, prev, n := 0.0, 0.0, 0
	for {
		frame, err := fr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			if errors.Is(err, ErrFrameTooLarge) {
				errorf("%v, skipping", err)
				continue
			}
			return n, fmt.Errorf("unable to read samples: %w", err)
		}
		s, err := DecodeSample(frame)
		if err != nil {
			errorf("unable to replay sample: %v", err)
			continue
		}
		if n == 0 || s.Time < prev {
			start, first = time.Now(), s.Time
		}
		prev = s.Time

		if speed > 0 {
			offset := time.Duration((s.Time - first) / speed * float64(time.Second))
			if wait := time.Until(start.Add(offset)); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return n, ctx.Err()
				case <-t.C:
				}
			}
		}

		if _, err := w.Write(append(frame, '\n')); err != nil {
			return n, fmt.Errorf("unable to write sample: %w", err)
		}
		n++
	}
}

// DialProducer connects to a plotter at addr, trying again every retry
// until it succeeds or ctx is done.
func DialProducer(ctx context.Context, addr string, retry time.Duration) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logf("unable to reach %v (%v), retrying in %v", addr, err, retry)
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
