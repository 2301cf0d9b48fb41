// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the slog.Logger cmd/simrun hands to the rest
// of the module, following sessions/session.go's
// "slog.New(handler).WithGroup(...)" shape but adding a syslog
// handler option for deployments that want centralized logging
// instead of the default text handler over pubsub.Logger.
package logging

import (
	"log/slog"
	"log/syslog"

	slogsyslog "github.com/samber/slog-syslog/v2"

	"github.com/descore/simkernel/config"
	"github.com/descore/simkernel/pubsub"
)

// New builds a slog.Logger per cfg: a text handler over ps (so logs
// are also republished on ps.Subscribe) by default, or a
// samber/slog-syslog/v2 handler when cfg.Syslog is set.
func New(cfg config.Logging, ps *pubsub.Logger) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)

	if cfg.Syslog {
		writer, err := syslog.Dial("udp", cfg.Addr, syslog.LOG_INFO, "simkernel")
		if err != nil {
			return nil, err
		}
		handler := slogsyslog.Option{Level: level, Writer: writer}.NewSyslogHandler()
		return slog.New(handler).WithGroup("simkernel"), nil
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewTextHandler(ps, opts)).WithGroup("simkernel"), nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
