// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchHost string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print live updates from a running plotter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u := url.URL{Scheme: "ws", Host: watchHost, Path: "/redirection/stream"}
		logf("connecting to %v", u.String())

		c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer c.Close()

		ctx, cancel := signalContext()
		defer cancel()

		done := make(chan error, 1)
		go func() {
			for {
				_, message, err := c.ReadMessage()
				if err != nil {
					done <- err
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", message)
			}
		}()

		select {
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case <-ctx.Done():
			logf("interrupt signal received")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return fmt.Errorf("write close: %w", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		}
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchHost, "host", "H", "localhost:7745", "Websocket address to connect to")
}
