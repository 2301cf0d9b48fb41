// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package trace implements a tab-separated per-event trace writer,
// subscribed to the Executive's BeforeEvent notifications.
package trace

import (
	"fmt"
	"io"

	"github.com/caffix/queue"
	"github.com/descore/simkernel/pubsub"
)

const header = "time\tname\tid\tpriority\ttype\towner\n"

// Writer asynchronously drains a caffix/queue.Queue of formatted trace
// lines to w, mirroring dispatcher/dispatcher.go's
// collectEvents/completedCallback split between the producer
// (Notify, called on the Executive's goroutine) and the consumer (run,
// its own goroutine) so tracing never blocks the driver loop.
type Writer struct {
	out   io.Writer
	q     queue.Queue
	done  chan struct{}
	wrote bool
}

// NewWriter returns a Writer that appends to w and starts its
// background drain loop. Call Close when the experiment is done.
func NewWriter(w io.Writer) *Writer {
	tw := &Writer{out: w, q: queue.NewQueue(), done: make(chan struct{})}
	go tw.run()
	return tw
}

// Notify implements pubsub.Observer. Only BeforeEvent notifications
// carry an *event.Event and are traced; every other phase is ignored.
func (w *Writer) Notify(n pubsub.Notification) {
	if n.Phase != pubsub.BeforeEvent || n.Event == nil {
		return
	}
	e := n.Event
	line := fmt.Sprintf("%v\t%s\t%d\t%d\t%T\t%s\n", e.Time, e.Name, e.ID(), e.Priority, e.Action, n.Element)
	w.q.Append(line)
}

func (w *Writer) run() {
	if !w.wrote {
		_, _ = io.WriteString(w.out, header)
		w.wrote = true
	}
	for {
		select {
		case <-w.done:
			w.drain()
			return
		case <-w.q.Signal():
			w.drain()
		}
	}
}

func (w *Writer) drain() {
	for {
		element, ok := w.q.Next()
		if !ok {
			return
		}
		line := element.(string)
		_, _ = io.WriteString(w.out, line)
	}
}

// Close stops the drain loop after flushing any queued lines.
func (w *Writer) Close() {
	close(w.done)
}
