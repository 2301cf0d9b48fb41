// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package logging_test

import (
	"strings"
	"testing"
	"time"

	"github.com/descore/simkernel/adapters/logging"
	"github.com/descore/simkernel/config"
	"github.com/descore/simkernel/pubsub"
)

func TestNewTextHandlerWritesThroughLogger(t *testing.T) {
	ps := pubsub.NewLogger(nil)
	sub := ps.Subscribe()

	log, err := logging.New(config.Logging{Level: "info"}, ps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("replication complete", "index", 3)

	select {
	case msg := <-sub:
		if !strings.Contains(*msg, "replication complete") {
			t.Errorf("expected the logged message to reach the subscriber, got: %q", *msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the slog line to reach the pubsub logger")
	}
}

func TestNewSyslogDialFailureReturnsError(t *testing.T) {
	if _, err := logging.New(config.Logging{Level: "info", Syslog: true, Addr: "127.0.0.1:0"}, pubsub.NewLogger(nil)); err == nil {
		t.Error("expected an error dialing an unreachable syslog address")
	}
}
