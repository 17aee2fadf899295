// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recorded = `{"time":10,"overTime":1}
{"time":10.1,"overTime":2}
garbage
{"overTime":3}
{"time":10.2,"overTime":3}
`

func TestReplayWritesSamplesInOrder(t *testing.T) {
	var out bytes.Buffer
	n, err := Replay(context.Background(), &out, strings.NewReader(recorded), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "{\"time\":10,\"overTime\":1}\n{\"time\":10.1,\"overTime\":2}\n{\"time\":10.2,\"overTime\":3}\n", out.String())
}

func TestReplayHonoursTime(t *testing.T) {
	var out bytes.Buffer
	start := time.Now()
	n, err := Replay(context.Background(), &out, strings.NewReader(recorded), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestReplayPacesEachSession(t *testing.T) {
	in := `{"time":0}{"time":0.3}{"time":0}{"time":0.3}`
	start := time.Now()
	n, err := Replay(context.Background(), &bytes.Buffer{}, strings.NewReader(in), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond)
}

func TestReplayStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	in := `{"time":0}{"time":60}`
	n, err := Replay(ctx, &bytes.Buffer{}, strings.NewReader(in), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, n)
}

func TestDialProducerRetries(t *testing.T) {
	// Grab a free port, release it, then start listening after a delay.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	accepted := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer ln.Close()
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
		close(accepted)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := DialProducer(ctx, addr, 20*time.Millisecond)
	require.NoError(t, err)
	conn.Close()
	<-accepted
}

func TestDialProducerGivesUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DialProducer(ctx, "127.0.0.1:1", time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
