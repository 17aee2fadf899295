// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package main

import (
	"github.com/discursive-image/redirplot/api"
	"github.com/discursive-image/redirplot/api/ws"
	"github.com/spf13/cobra"
)

var serveFlags struct {
	listen     string
	http       string
	locale     string
	maxPoints  int
	renderRate float64
	yMax       float64
	oscHost    string
	oscPort    int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept a producer and serve live charts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := serveConfig(cmd, configPath)
		if err != nil {
			return err
		}

		srv, err := ws.NewServer(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		logf("producers on %v, viewers on http://%v", cfg.Listen, cfg.HTTP)
		if srv.OSC != nil {
			logf("forwarding samples over OSC to %v:%d", cfg.OSC.Host, cfg.OSC.Port)
		}
		if err := srv.Run(ctx); err != nil {
			return err
		}
		logf("shutting down")
		return nil
	},
}

// serveConfig loads the configuration file at path. Flags given explicitly
// on cmd win over the file.
func serveConfig(cmd *cobra.Command, path string) (api.Config, error) {
	cfg, err := api.LoadConfig(path)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Listen = serveFlags.listen
	}
	if f.Changed("http") {
		cfg.HTTP = serveFlags.http
	}
	if f.Changed("lang") {
		cfg.Locale = serveFlags.locale
	}
	if f.Changed("max-points") {
		cfg.MaxPoints = serveFlags.maxPoints
	}
	if f.Changed("render-rate") {
		cfg.RenderRate = serveFlags.renderRate
	}
	if f.Changed("y-max") {
		cfg.Chart.YMax = serveFlags.yMax
	}
	if f.Changed("osc-host") {
		cfg.OSC.Host = serveFlags.oscHost
	}
	if f.Changed("osc-port") {
		cfg.OSC.Port = serveFlags.oscPort
	}
	return cfg, nil
}

func init() {
	d := api.DefaultConfig()
	f := serveCmd.Flags()
	f.StringVarP(&serveFlags.listen, "listen", "l", d.Listen, "Address producers connect to")
	f.StringVarP(&serveFlags.http, "http", "p", d.HTTP, "Address of the chart server")
	f.StringVar(&serveFlags.locale, "lang", d.Locale, "Default chart language (en, fr)")
	f.IntVar(&serveFlags.maxPoints, "max-points", d.MaxPoints, "Samples kept in memory, 0 keeps all")
	f.Float64Var(&serveFlags.renderRate, "render-rate", d.RenderRate, "Maximum chart renders per second, 0 for no limit")
	f.Float64Var(&serveFlags.yMax, "y-max", d.Chart.YMax, "Upper bound of the cumulative chart in degrees, 0 to autoscale")
	f.StringVar(&serveFlags.oscHost, "osc-host", d.OSC.Host, "OSC server receiving samples, empty to disable")
	f.IntVar(&serveFlags.oscPort, "osc-port", d.OSC.Port, "OSC server port")
}
