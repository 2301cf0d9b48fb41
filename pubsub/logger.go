// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"sync"
)

// Logger adapts a slog.Handler's output into the same Notification
// fanout the Executive and Model use: every published line becomes a
// LogEmitted Notification on the Hub (so a livestream subscriber sees
// log lines interleaved with simulation events), and is additionally
// buffered on a channel for callers that only want the raw text (e.g.
// a CLI tailing log output without wiring up a Hub).
type Logger struct {
	hub        *Hub
	logChannel chan *string
	mu         sync.Mutex
}

// NewLogger returns a Logger that republishes every line as a
// LogEmitted Notification on hub. hub may be nil, in which case the
// Logger behaves as a standalone buffered channel.
func NewLogger(hub *Hub) *Logger {
	return &Logger{
		hub:        hub,
		logChannel: make(chan *string, 100),
	}
}

// Publish delivers msg to the Hub as a LogEmitted Notification (if one
// was supplied) and to the buffered channel, dropping the latter
// instead of blocking the caller if no subscriber is draining it.
func (l *Logger) Publish(msg string) {
	if l.hub != nil {
		l.hub.Publish(Notification{Element: "logger", Phase: LogEmitted, Message: msg})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case l.logChannel <- &msg:
	default:
	}
}

// Write allows the Logger to be used as a Writer and in structured logging.
func (l *Logger) Write(p []byte) (n int, err error) {
	go func() {
		l.Publish(string(p))
	}()
	return len(p), nil
}

// Subscribe provides a read-only channel to receive log messages,
// independent of any Hub observer that may also be registered.
func (l *Logger) Subscribe() <-chan *string {
	return l.logChannel
}
