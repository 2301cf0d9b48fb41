// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package pubsub

import "github.com/descore/simkernel/event"

// Phase is one of the closed set of observer state labels the core
// emits.
type Phase string

const (
	BeforeExperiment              Phase = "BeforeExperiment"
	BeforeReplication             Phase = "BeforeReplication"
	Initialized                   Phase = "Initialized"
	MonteCarlo                    Phase = "MonteCarlo"
	Update                        Phase = "Update"
	WarmUp                        Phase = "WarmUp"
	TimedUpdate                   Phase = "TimedUpdate"
	ReplicationEnded              Phase = "ReplicationEnded"
	AfterReplication              Phase = "AfterReplication"
	AfterExperiment               Phase = "AfterExperiment"
	RemovedFromModel              Phase = "RemovedFromModel"
	ConditionalActionRegistration Phase = "ConditionalActionRegistration"
	BeforeEvent                   Phase = "BeforeEvent"
	AfterEvent                    Phase = "AfterEvent"
	ModelElementAdded             Phase = "ModelElementAdded"
	ModelElementRemoved           Phase = "ModelElementRemoved"
	LogEmitted                    Phase = "LogEmitted"
)

// Notification is the triple delivered to every observer: the
// element's name, the phase label, and the event (nil outside
// BeforeEvent/AfterEvent). Message carries the log line for
// LogEmitted notifications and is empty otherwise.
type Notification struct {
	Element string
	Phase   Phase
	Event   *event.Event
	Message string
}

// Observer receives notifications synchronously at the point they are
// published. Observers must not schedule new events from within a
// callback except where explicitly permitted, and must not be
// (un)registered while a notification is in progress.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(n Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }
