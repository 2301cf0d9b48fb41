// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/caffix/pipeline"
	"github.com/caffix/queue"
)

// Hub is the notification fanout point used by the Executive and
// Model. Synchronous observers (registered via Subscribe) are invoked
// in-line, in registration order, inside Publish, so they may observe
// a notification point synchronously. Async observers (registered via
// SubscribeAsync) are instead staged by priority into a
// caffix/pipeline.Pipeline fed by a caffix/queue.Queue, the same shape
// registry/pipelines.go builds per asset type for plugin handlers;
// they receive every notification off the caller's goroutine, for
// slow consumers (trace persistence, a websocket broadcaster) that
// must never block the driver loop.
type Hub struct {
	mu      sync.Mutex
	syncObs []Observer

	async  map[int][]Observer
	input  *pipelineQueue
	pipe   *pipeline.Pipeline
	cancel context.CancelFunc
}

// NewHub returns an empty Hub and starts its async fanout pipeline.
func NewHub() *Hub {
	h := &Hub{
		async: make(map[int][]Observer),
		input: &pipelineQueue{Queue: queue.NewQueue()},
	}
	h.rebuildPipeline()
	return h
}

// Subscribe registers a synchronous observer.
func (h *Hub) Subscribe(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.syncObs = append(h.syncObs, o)
}

// SubscribeAsync registers an observer on the async, priority-staged
// fanout pipeline (priority clamped to [1,9]).
func (h *Hub) SubscribeAsync(o Observer, priority int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if priority < 1 {
		priority = 1
	} else if priority > 9 {
		priority = 9
	}
	h.async[priority] = append(h.async[priority], o)
	h.rebuildPipelineLocked()
}

// Publish delivers n to every synchronous observer in-line, then
// enqueues n for the async fanout pipeline.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	obs := h.syncObs
	h.mu.Unlock()

	for _, o := range obs {
		o.Notify(n)
	}

	h.input.Queue.Append(n)
}

// Shutdown stops the async fanout pipeline.
func (h *Hub) Shutdown() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Hub) rebuildPipeline() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rebuildPipelineLocked()
}

// rebuildPipelineLocked replaces the running pipeline with one that
// reflects the current async subscriber set. Rebuilding is expected to
// happen during setup, before the Executive starts stepping.
func (h *Hub) rebuildPipelineLocked() {
	if h.cancel != nil {
		h.cancel()
	}

	var stages []pipeline.Stage
	priorities := make([]int, 0, len(h.async))
	for p := range h.async {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)
	for _, p := range priorities {
		observers := h.async[p]
		stages = append(stages, pipeline.FIFO("", deliverTask(observers)))
	}

	h.pipe = pipeline.NewPipeline(stages...)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func(p *pipeline.Pipeline) {
		_ = p.ExecuteBuffered(ctx, h.input, pipeline.SinkFunc(dropSink), 50)
	}(h.pipe)
}

func deliverTask(observers []Observer) pipeline.TaskFunc {
	return pipeline.TaskFunc(func(ctx context.Context, data pipeline.Data, tp pipeline.TaskParams) (pipeline.Data, error) {
		n, ok := data.(Notification)
		if !ok {
			return nil, errors.New("pubsub: pipeline task received non-Notification data")
		}
		for _, o := range observers {
			o.Notify(n)
		}
		return data, nil
	})
}

func dropSink(ctx context.Context, data pipeline.Data) error { return nil }

// pipelineQueue adapts queue.Queue to the caffix/pipeline InputSource
// interface, the same adapter registry/pipelines.go defines as
// PipelineQueue.
type pipelineQueue struct {
	queue.Queue
}

func (q *pipelineQueue) Next(ctx context.Context) bool {
	if q.Queue.Len() > 0 {
		return true
	}
	for {
		select {
		case <-ctx.Done():
			return false
		case <-q.Queue.Signal():
			if q.Queue.Len() > 0 {
				return true
			}
		}
	}
}

func (q *pipelineQueue) Data() pipeline.Data {
	if element, ok := q.Queue.Next(); ok {
		return element.(pipeline.Data)
	}
	return nil
}

func (q *pipelineQueue) Error() error { return nil }

// Clone implements pipeline.Data.
func (n Notification) Clone() pipeline.Data { return n }
