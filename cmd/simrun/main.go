// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"

	"github.com/descore/simkernel/adapters/livestream"
	"github.com/descore/simkernel/adapters/logging"
	"github.com/descore/simkernel/adapters/persistence"
	"github.com/descore/simkernel/config"
	"github.com/descore/simkernel/model"
	"github.com/descore/simkernel/pubsub"
	"github.com/descore/simkernel/simulation"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to the experiment YAML configuration")
	flag.Parse()

	cfg := config.New()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load the configuration: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	hub := pubsub.NewHub()
	defer hub.Shutdown()

	ps := pubsub.NewLogger(hub)
	l, err := logging.New(cfg.Logging, ps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start logging: %v", err)
		os.Exit(1)
	}

	var store *persistence.Store
	if cfg.Persistence.Enabled {
		store, err = persistence.Open(cfg.Persistence.Database, cfg.Persistence.Dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open the result store: %v", err)
			os.Exit(1)
		}
	}

	if cfg.Livestream.Enabled {
		broadcaster := livestream.NewBroadcaster(l, cfg.Livestream.RateLimitHz)
		hub.SubscribeAsync(broadcaster, 5)
		addr := cfg.Livestream.Addr
		if addr == "" {
			addr = ":8089"
		}
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/live", broadcaster.Handler)
			if err := http.ListenAndServe(addr, mux); err != nil {
				l.Warn("livestream: server stopped", "error", err)
			}
		}()
	}

	m := model.New(hub, 1)

	exp := simulation.Experiment{
		Replications:       cfg.Experiment.Replications,
		ReplicationLength:  cfg.Experiment.ReplicationLength,
		WarmUpLength:       cfg.Experiment.WarmUpLength,
		Antithetic:         cfg.Experiment.Antithetic,
		ResetStreamEachRep: cfg.Experiment.ResetStreamEachRep,
		AdvanceSubStream:   cfg.Experiment.AdvanceSubStream,
		GCAfterReplication: cfg.Experiment.GCAfterReplication,
		StreamAdvanceCount: cfg.Experiment.StreamAdvanceCount,
		WallClockBudget:    time.Duration(cfg.Experiment.WallClockBudgetSecs * float64(time.Second)),
		Seed:               cfg.Experiment.Seed,
		Controls:           cfg.Experiment.Controls,
	}
	sim := simulation.New(exp, m, hub)

	if store != nil {
		rec := &persistence.ExperimentRecord{
			ID:                sim.ID(),
			Name:              "simrun",
			Replications:      exp.Replications,
			ReplicationLength: exp.ReplicationLength,
			WarmUpLength:      exp.WarmUpLength,
			Antithetic:        exp.Antithetic,
			Seed:              exp.Seed,
			StartedAt:         time.Now(),
		}
		if err := store.RecordExperimentStart(rec); err != nil {
			l.Warn("persistence: failed to record experiment start", "error", err)
		}

		sim.Subscribe(func(res simulation.ReplicationResult) {
			r := &persistence.ReplicationRecord{
				ID:                uuid.New(),
				ExperimentID:      sim.ID(),
				IndexInExperiment: res.Index,
				AntitheticPair:    res.AntitheticPair,
				EndingIndicator:   res.EndingIndicator.String(),
				StepsExecuted:     int64(res.Counters.Executed),
				EventsScheduled:   int64(res.Counters.Scheduled),
				EventsExecuted:    int64(res.Counters.Executed),
				EndingTime:        res.EndingTime,
				WallClockSeconds:  res.WallClock.Seconds(),
				StartedAt:         res.StartedAt,
				EndedAt:           res.EndedAt,
			}
			if err := store.RecordReplication(r); err != nil {
				l.Warn("persistence: failed to record replication", "error", err, "index", res.Index)
			}
		})
	}

	bar := pb.StartNew(exp.Replications)
	sim.Subscribe(func(simulation.ReplicationResult) { bar.Increment() })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	done := make(chan error, 1)
	go func() { done <- sim.RunExperiment() }()

	select {
	case <-quit:
		l.Info("Terminating the simulation run")
		sim.Kill()
		<-done
	case err := <-done:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Experiment failed: %v", err)
			os.Exit(1)
		}
	}
	bar.Finish()

	if store != nil {
		if err := store.RecordExperimentEnd(sim.ID(), time.Now()); err != nil {
			l.Warn("persistence: failed to record experiment end", "error", err)
		}
	}

	stats := sim.Stats()
	fmt.Printf("replications completed: %d, events executed: %d, events scheduled: %d\n",
		stats.ReplicationsCompleted, stats.EventsExecutedTotal, stats.EventsScheduledTotal)
}
