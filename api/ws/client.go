// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package ws

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum size of a client event.
	maxEventSize = 1024
)

const EventReset = "reset"

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID   string
	Addr string
	hub  *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound updates.
	send chan *Update

	// Errors to report to the peer. Only forwardMessages writes to conn.
	errs chan error

	// Handles events sent by the browser.
	onEvent func(ClientEvent) error
}

type ClientEvent struct {
	Type string `json:"type"`
}

func (c *Client) wsError(err error) {
	logf("websocket error: %v", err)
	select {
	case c.errs <- err:
	default:
	}
}

func (c *Client) readMessages() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		var event ClientEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				errorf("client %v: %v", c.ID, err)
			}
			break
		}

		switch event.Type {
		case EventReset:
		default:
			c.wsError(fmt.Errorf("undefined event type %v", event.Type))
			continue
		}

		if c.onEvent == nil {
			continue
		}
		if err := c.onEvent(event); err != nil {
			c.wsError(err)
		}
	}
}

func (c *Client) forwardMessages() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case u, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(u); err != nil {
				errorf("unable to send update to %v: %v", c.ID, err)
				return
			}
		case err := <-c.errs:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(err.Error())); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
