// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package livestream_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/descore/simkernel/adapters/livestream"
	"github.com/descore/simkernel/event"
	"github.com/descore/simkernel/pubsub"
	"github.com/gorilla/websocket"
)

type stubOwner string

func (s stubOwner) ElementName() string { return string(s) }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcasterSendsNotificationAsJSON(t *testing.T) {
	b := livestream.NewBroadcaster(nil, 0)
	srv := httptest.NewServer(http.HandlerFunc(b.Handler))
	defer srv.Close()

	conn := dial(t, srv)

	e := event.New(7, "fire", 2.5, event.PriorityDefault, nil, nil, stubOwner("owner"))
	b.Notify(pubsub.Notification{Element: "owner", Phase: pubsub.BeforeEvent, Event: e})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var decoded struct {
		Element  string  `json:"element"`
		Phase    string  `json:"phase"`
		EventID  uint64  `json:"event_id"`
		Time     float64 `json:"time"`
		Priority int     `json:"priority"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Element != "owner" || decoded.EventID != 7 || decoded.Time != 2.5 {
		t.Errorf("unexpected decoded message: %+v", decoded)
	}
}

func TestBroadcasterRateLimitDropsExcessNotifications(t *testing.T) {
	b := livestream.NewBroadcaster(nil, 1)
	srv := httptest.NewServer(http.HandlerFunc(b.Handler))
	defer srv.Close()

	conn := dial(t, srv)

	for i := 0; i < 5; i++ {
		b.Notify(pubsub.Notification{Element: "owner", Phase: pubsub.BeforeEvent})
	}

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	count := 0
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		count++
	}
	if count >= 5 {
		t.Errorf("expected the rate limiter to drop some of 5 rapid notifications, got %d delivered", count)
	}
}
