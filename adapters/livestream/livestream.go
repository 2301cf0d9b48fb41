// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package livestream broadcasts BeforeEvent/AfterEvent/phase
// notifications to connected websocket clients over a long-lived
// connection (see DESIGN.md's dropped-deps section for why this
// replaced a GraphQL subscription API).
package livestream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/descore/simkernel/pubsub"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireMessage is the JSON form of a pubsub.Notification sent to
// clients; the *event.Event pointer is flattened to plain fields so it
// survives marshaling.
type wireMessage struct {
	Element  string  `json:"element"`
	Phase    string  `json:"phase"`
	EventID  uint64  `json:"event_id,omitempty"`
	Time     float64 `json:"time,omitempty"`
	Priority int     `json:"priority,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Broadcaster fans BeforeEvent/AfterEvent/phase notifications out to
// every connected websocket client, throttled by golang.org/x/time/rate
// so a burst of simulated-time activity cannot flood a slow client.
type Broadcaster struct {
	log     *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewBroadcaster returns a Broadcaster that allows at most hz
// notifications per second per client (0 disables throttling).
func NewBroadcaster(log *slog.Logger, hz int) *Broadcaster {
	var lim *rate.Limiter
	if hz > 0 {
		lim = rate.NewLimiter(rate.Limit(hz), hz)
	}
	return &Broadcaster{log: log, limiter: lim, clients: make(map[*websocket.Conn]struct{})}
}

// Handler upgrades the HTTP request to a websocket connection and
// registers it as a broadcast target until the client disconnects.
func (b *Broadcaster) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.log != nil {
			b.log.Warn("livestream: upgrade failed", "error", err)
		}
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	go b.drainClient(conn)
}

// drainClient discards any inbound traffic (this is a publish-only
// feed) until the connection closes, then deregisters it.
func (b *Broadcaster) drainClient(conn *websocket.Conn) {
	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Notify implements pubsub.Observer. Register via Hub.SubscribeAsync
// so a slow client never blocks the driver loop.
func (b *Broadcaster) Notify(n pubsub.Notification) {
	if b.limiter != nil && !b.limiter.Allow() {
		return
	}

	msg := wireMessage{Element: n.Element, Phase: string(n.Phase), Message: n.Message}
	if n.Event != nil {
		msg.EventID = n.Event.ID()
		msg.Time = n.Event.Time
		msg.Priority = n.Event.Priority
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(b.clients, conn)
			conn.Close()
		}
	}
}
