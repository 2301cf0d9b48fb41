// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Command simreport is the read-side companion to simrun: it opens the
// same result store and prints a summary of recorded experiments and
// their replications.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/descore/simkernel/adapters/persistence"
	"github.com/descore/simkernel/config"
)

func main() {
	var cfgPath, dbDir string
	flag.StringVar(&cfgPath, "config", "", "path to the experiment YAML configuration")
	flag.StringVar(&dbDir, "dir", "", "override the result store directory")
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
	if dbDir != "" {
		cfg.Persistence.Dir = dbDir
	}

	store, err := persistence.Open(cfg.Persistence.Database, cfg.Persistence.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open the result store: %v", err)
		os.Exit(1)
	}

	experiments, err := store.Experiments()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read experiments: %v", err)
		os.Exit(1)
	}
	if len(experiments) == 0 {
		fmt.Println("no experiments recorded")
		return
	}

	for _, exp := range experiments {
		ended := "running"
		if exp.EndedAt != nil {
			ended = exp.EndedAt.Format("2006-01-02T15:04:05")
		}
		fmt.Printf("experiment %s %q: %d replications, seed=%d, started=%s, ended=%s\n",
			exp.ID, exp.Name, exp.Replications, exp.Seed,
			exp.StartedAt.Format("2006-01-02T15:04:05"), ended)

		reps, err := store.Replications(exp.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  failed to read replications: %v\n", err)
			continue
		}
		for _, r := range reps {
			fmt.Printf("  [%d] %s ending_time=%.4f events_executed=%d wall_clock=%.3fs antithetic=%v\n",
				r.IndexInExperiment, r.EndingIndicator, r.EndingTime, r.EventsExecuted,
				r.WallClockSeconds, r.AntitheticPair)
		}
	}
}
