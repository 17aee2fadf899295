// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package main

import (
	"time"

	"github.com/discursive-image/redirplot/api"
	"github.com/spf13/cobra"
)

var replayFlags struct {
	input string
	addr  string
	speed float64
	retry time.Duration
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Send a recorded sample stream to a running plotter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		in, err := openInput(replayFlags.input)
		if err != nil {
			return err
		}
		defer in.Close()

		conn, err := api.DialProducer(ctx, replayFlags.addr, replayFlags.retry)
		if err != nil {
			return err
		}
		defer conn.Close()
		logf("connected to %v", conn.RemoteAddr())

		n, err := api.Replay(ctx, conn, in, replayFlags.speed)
		logf("%d samples sent", n)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	f := replayCmd.Flags()
	f.StringVarP(&replayFlags.input, "input", "i", "-", "Input file path. Use - for stdin.")
	f.StringVarP(&replayFlags.addr, "addr", "a", "localhost:13000", "Plotter producer address")
	f.Float64Var(&replayFlags.speed, "speed", 1, "Replay speed factor, 0 sends everything at once")
	f.DurationVar(&replayFlags.retry, "retry", 5*time.Second, "Delay between connection attempts")
}
