// Copyright 2013 The Gorilla WebSocket Authors. All rights reserved.
// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package ws

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/discursive-image/redirplot/api"
)

var errHubClosed = errors.New("hub is not running")

const (
	UpdateSample = "sample"
	UpdateReset  = "reset"
)

// Update is what clients receive on the stream.
type Update struct {
	Type   string      `json:"type"`
	Seq    uint64      `json:"seq"`
	Sample *api.Sample `json:"sample,omitempty"`
}

// Hub maintains the set of active clients and broadcasts updates to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan *Update
	register   chan *Client
	unregister chan *Client

	// Handed to clients as soon as they register.
	last *Update

	// Closed when run returns.
	done chan struct{}

	// Registered clients, readable outside of run.
	count atomic.Int64
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Update, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.count.Add(-1)
		wsClients.Dec()
	}
}

func (h *Hub) run(ctx context.Context) {
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
		close(h.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Add(1)
			wsClients.Inc()
			if h.last != nil {
				c.send <- h.last
			}
		case c := <-h.unregister:
			h.drop(c)
		case u := <-h.broadcast:
			h.last = u
			for c := range h.clients {
				select {
				case c.send <- u:
				default:
					// Too slow to keep up, let it go.
					logf("dropping slow client %v", c.ID)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// publish queues u for broadcasting, giving up when ctx is done.
func (h *Hub) publish(ctx context.Context, u *Update) error {
	select {
	case h.broadcast <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return errHubClosed
	}
}
