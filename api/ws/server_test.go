// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/discursive-image/redirplot/api"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() api.Config {
	cfg := api.DefaultConfig()
	cfg.RenderRate = 0
	cfg.Chart.Width, cfg.Chart.Height = 4, 3
	return cfg
}

// startServer runs the hub behind an httptest server.
func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return startServerWith(t, testConfig())
}

func startServerWith(t *testing.T, cfg api.Config) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.hub.run(ctx)
		close(done)
	}()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/redirection/stream"
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readUpdate(t *testing.T, c *websocket.Conn) Update {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var u Update
	require.NoError(t, c.ReadJSON(&u))
	return u
}

// waitClients blocks until n viewers are registered.
func waitClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.hub.count.Load() == int64(n)
	}, 5*time.Second, 10*time.Millisecond)
}

// drain blocks until the hub has picked up every published update.
func drain(t *testing.T, srv *Server) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(srv.hub.broadcast) == 0
	}, 5*time.Second, time.Millisecond)
}

func TestPublishReachesViewers(t *testing.T) {
	srv, ts := startServer(t)
	c := dial(t, ts)
	waitClients(t, srv, 1)

	srv.Publish(context.Background(), api.Sample{Time: 1, OverTime: 2})

	u := readUpdate(t, c)
	assert.Equal(t, UpdateSample, u.Type)
	assert.Equal(t, uint64(1), u.Seq)
	require.NotNil(t, u.Sample)
	assert.Equal(t, 2.0, u.Sample.OverTimeSum)
	assert.Equal(t, 1, srv.Series.Len())
}

func TestNewViewerGetsLastUpdate(t *testing.T) {
	srv, ts := startServer(t)
	srv.Publish(context.Background(), api.Sample{Time: 1})
	srv.Publish(context.Background(), api.Sample{Time: 2})
	drain(t, srv)

	c := dial(t, ts)
	u := readUpdate(t, c)
	assert.Equal(t, uint64(2), u.Seq)
	assert.Equal(t, 2.0, u.Sample.Time)
}

func TestResetEvent(t *testing.T) {
	srv, ts := startServer(t)
	srv.Publish(context.Background(), api.Sample{Time: 1})
	drain(t, srv)
	c := dial(t, ts)
	readUpdate(t, c)

	require.NoError(t, c.WriteJSON(ClientEvent{Type: EventReset}))
	u := readUpdate(t, c)
	assert.Equal(t, UpdateReset, u.Type)
	assert.Nil(t, u.Sample)
	assert.Zero(t, srv.Series.Len())
}

func TestUnknownEvent(t *testing.T) {
	_, ts := startServer(t)
	c := dial(t, ts)

	require.NoError(t, c.WriteJSON(ClientEvent{Type: "dance"}))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	assert.Contains(t, string(msg), "undefined event type dance")
}

func TestChartEndpoint(t *testing.T) {
	srv, ts := startServer(t)
	srv.Publish(context.Background(), api.Sample{Time: 1, Curvature: 1})
	srv.Publish(context.Background(), api.Sample{Time: 2, Curvature: 1})

	resp, err := http.Get(ts.URL + "/redirection/chart.svg?lang=fr")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "Courbure")

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/redirection/chart.svg?lang=fr", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/redirection/chart.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestChartMarkedStaleWhenThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.RenderRate = 0.0001
	srv, ts := startServerWith(t, cfg)
	srv.Publish(context.Background(), api.Sample{Time: 1})

	resp, err := http.Get(ts.URL + "/redirection/chart.svg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "1", resp.Header.Get("X-Chart-Version"))
	assert.Empty(t, resp.Header.Get("X-Chart-Stale"))

	srv.Publish(context.Background(), api.Sample{Time: 2})

	resp, err = http.Get(ts.URL + "/redirection/chart.svg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Chart-Version"))
	assert.Equal(t, "1", resp.Header.Get("X-Chart-Stale"))
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestPublishForwardsOverOSC(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	cfg := testConfig()
	cfg.OSC.Host = "127.0.0.1"
	cfg.OSC.Port = pc.LocalAddr().(*net.UDPAddr).Port
	srv, _ := startServerWith(t, cfg)
	require.NotNil(t, srv.OSC)

	srv.Publish(context.Background(), api.Sample{Time: 1, Curvature: 2})

	require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf[:n]), "#bundle"))
	assert.Contains(t, string(buf[:n]), api.OSCSampleAddr)
}

func TestSeriesEndpoint(t *testing.T) {
	srv, ts := startServer(t)
	srv.Publish(context.Background(), api.Sample{Time: 1, OverTime: 1})

	resp, err := http.Get(ts.URL + "/redirection/series")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap api.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Samples, 1)
	assert.Equal(t, 1.0, snap.Samples[0].OverTimeSum)
}

func TestStaticEndpoints(t *testing.T) {
	_, ts := startServer(t)
	for path, want := range map[string]string{
		"/":        "redirection/stream",
		"/healthz": "ok",
		"/metrics": "redirplot_samples_received_total",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}
}

func TestServeEndToEnd(t *testing.T) {
	srv, err := NewServer(testConfig())
	require.NoError(t, err)

	ingestLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ingestLn, httpLn) }()

	c, _, err := websocket.DefaultDialer.Dial("ws://"+httpLn.Addr().String()+"/redirection/stream", nil)
	require.NoError(t, err)
	defer c.Close()
	waitClients(t, srv, 1)

	producer, err := net.Dial("tcp", ingestLn.Addr().String())
	require.NoError(t, err)
	defer producer.Close()
	_, err = producer.Write([]byte("{\"time\":0.5,\"rotational\":3}\n"))
	require.NoError(t, err)

	u := readUpdate(t, c)
	assert.Equal(t, 3.0, u.Sample.Rotational)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNewServerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Listen = ""
	_, err := NewServer(cfg)
	assert.Error(t, err)
}
