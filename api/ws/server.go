// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/discursive-image/redirplot/api"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var wsClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "redirplot_ws_clients",
	Help: "Connected websocket viewers",
})

func logf(format string, args ...interface{}) {
	api.Logger().Infof("ws * "+format, args...)
}

func errorf(format string, args ...interface{}) {
	api.Logger().Errorf("ws * error: "+format, args...)
}

// Server ingests samples from a producer and serves the live charts.
type Server struct {
	Config   api.Config
	Series   *api.Series
	Renderer *api.Renderer
	Files    *api.FileHandler
	// Optional.
	OSC *api.OSCForwarder

	lang language.Tag
	hub  *Hub
	seq  atomic.Uint64
}

func NewServer(cfg api.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	series := api.NewSeries(cfg.MaxPoints)
	s := &Server{
		Config:   cfg,
		Series:   series,
		Renderer: api.NewRenderer(series, cfg.ChartOptions(), cfg.RenderRate),
		Files:    api.NewFileHandler(nil),
		lang:     api.MatchLanguage(cfg.Locale, ""),
		hub:      newHub(),
	}
	if cfg.OSC.Host != "" {
		s.OSC = api.NewOSCForwarder(cfg.OSC.Host, cfg.OSC.Port)
	}
	return s, nil
}

// Publish stores sample, forwards it over OSC and broadcasts it to the
// viewers.
func (s *Server) Publish(ctx context.Context, sample api.Sample) {
	sample = s.Series.Append(sample)
	if s.OSC != nil {
		if err := s.OSC.Forward(sample); err != nil {
			errorf(err.Error())
		}
	}
	u := &Update{Type: UpdateSample, Seq: s.seq.Add(1), Sample: &sample}
	if err := s.hub.publish(ctx, u); err != nil {
		errorf("unable to broadcast sample: %v", err)
	}
}

// Reset clears the series and tells the viewers.
func (s *Server) Reset(ctx context.Context) error {
	s.Series.Reset()
	logf("series reset")
	return s.hub.publish(ctx, &Update{Type: UpdateReset, Seq: s.seq.Add(1)})
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.Files)
	mux.HandleFunc("/redirection/stream", s.ServeWs)
	mux.HandleFunc("/redirection/series", s.serveSeries)
	for _, f := range api.Formats {
		mux.HandleFunc("/redirection/chart."+f, s.serveChart)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) serveSeries(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Series.Snapshot()); err != nil {
		errorf("unable to encode series: %v", err)
	}
}

var contentTypes = map[string]string{
	"png": "image/png",
	"svg": "image/svg+xml",
	"pdf": "application/pdf",
	"jpg": "image/jpeg",
}

func (s *Server) serveChart(w http.ResponseWriter, r *http.Request) {
	format, err := api.FormatOf(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	tag := s.lang
	if lang, accept := r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"); lang != "" || accept != "" {
		tag = api.MatchLanguage(lang, accept)
	}
	labels := api.LabelsFor(tag)

	data, version, err := s.Renderer.Render(format, labels)
	if err != nil {
		errorf("unable to render chart: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	etag := `"` + strconv.FormatUint(version, 10) + "-" + labels.Lang.String() + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Chart-Version", strconv.FormatUint(version, 10))
	if version < s.Series.Version() {
		// Throttled: the viewer should ask again shortly.
		w.Header().Set("X-Chart-Stale", "1")
		w.Header().Set("Retry-After", "1")
	}
	if strings.Contains(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.Write(data)
}

func (s *Server) handleEvent(ev ClientEvent) error {
	switch ev.Type {
	case EventReset:
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return s.Reset(ctx)
	}
	return fmt.Errorf("undefined event type %v", ev.Type)
}

func (s *Server) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		errorf(err.Error())
		return
	}
	client := &Client{
		ID:      uuid.NewString(),
		Addr:    r.RemoteAddr,
		hub:     s.hub,
		conn:    conn,
		send:    make(chan *Update, 64),
		errs:    make(chan error, 4),
		onEvent: s.handleEvent,
	}
	logf("viewer %v connected from %v", client.ID, client.Addr)
	if !client.hub.add(client) {
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.forwardMessages()
	go client.readMessages()
}

// Serve runs the hub, ingests producers from ingestLn and serves HTTP on
// httpLn until ctx is done or one of them fails.
func (s *Server) Serve(ctx context.Context, ingestLn, httpLn net.Listener) error {
	logf("opening stream handler loop")
	defer logf("closing stream handler loop")

	srv := &http.Server{
		Handler:      s.Handler(),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
	in := &api.Ingester{
		IdleTimeout:  s.Config.IdleTimeout,
		MaxFrameSize: s.Config.MaxFrameSize,
		Sink:         s.Publish,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.run(ctx)
		return nil
	})
	g.Go(func() error {
		return in.Serve(ctx, ingestLn)
	})
	g.Go(func() error {
		logf("server listening on %v", httpLn.Addr())
		if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listener error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Viewers get a few seconds to fetch the last chart.
		sctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Run listens on the configured addresses and calls Serve.
func (s *Server) Run(ctx context.Context) error {
	ingestLn, err := net.Listen("tcp", s.Config.Listen)
	if err != nil {
		return fmt.Errorf("unable to listen for producers: %w", err)
	}
	httpLn, err := net.Listen("tcp", s.Config.HTTP)
	if err != nil {
		ingestLn.Close()
		return fmt.Errorf("unable to listen for viewers: %w", err)
	}
	return s.Serve(ctx, ingestLn, httpLn)
}
