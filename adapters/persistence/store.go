// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package persistence stores per-experiment and per-replication
// results, following sessions/session.go's setupDB/selectDBMS/
// migrations control flow verbatim but against a simulation-result
// schema instead of an asset graph.
package persistence

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/descore/simkernel/adapters/persistence/migrations"
	"github.com/descore/simkernel/config"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	migrate "github.com/rubenv/sql-migrate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ExperimentRecord is the gorm model for one Experiment run.
type ExperimentRecord struct {
	ID                uuid.UUID `gorm:"primaryKey;type:uuid" json:"id"`
	Name              string
	Replications      int
	ReplicationLength float64
	WarmUpLength      float64
	Antithetic        bool
	Seed              uint64
	StartedAt         time.Time
	EndedAt           *time.Time
}

func (ExperimentRecord) TableName() string { return "experiments" }

// ReplicationRecord is the gorm model for one completed replication.
type ReplicationRecord struct {
	ID                uuid.UUID `gorm:"primaryKey;type:uuid"`
	ExperimentID      uuid.UUID `gorm:"index"`
	IndexInExperiment int
	AntitheticPair    bool
	EndingIndicator   string
	StepsExecuted     int64
	EventsScheduled   int64
	EventsExecuted    int64
	EndingTime        float64
	WallClockSeconds  float64
	StartedAt         time.Time
	EndedAt           time.Time
}

func (ReplicationRecord) TableName() string { return "replications" }

// Store is the gorm-backed result store opened against a single
// database configured via config.Database.
type Store struct {
	db *gorm.DB
}

// Open selects the dialect named by cfg.System (defaulting to sqlite
// under dir), runs its embedded migration set, and returns a ready
// Store.
func Open(cfg config.Database, dir string) (*Store, error) {
	system := strings.ToLower(strings.TrimSpace(cfg.System))

	var (
		migName string
		dialect gorm.Dialector
		migFS   fs.FS
		migRoot string
	)
	switch system {
	case "", "sqlite", "sqlite3":
		migName = "sqlite3"
		dialect = sqlite.Open(sqliteDSN(dir))
		migFS = migrations.SQLite()
		migRoot = "sqlite"
	case "postgres", "postgresql":
		migName = "postgres"
		dialect = postgres.Open(postgresDSN(cfg))
		migFS = migrations.Postgres()
		migRoot = "postgres"
	default:
		return nil, fmt.Errorf("persistence: unsupported database system %q", cfg.System)
	}

	gdb, err := gorm.Open(dialect, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("persistence: opening database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("persistence: extracting raw DB: %w", err)
	}
	source := migrate.EmbedFileSystemMigrationSource{FileSystem: migFS, Root: migRoot}
	if _, err := migrate.Exec(sqlDB, migName, source, migrate.Up); err != nil {
		return nil, fmt.Errorf("persistence: running migrations: %w", err)
	}

	return &Store{db: gdb}, nil
}

// RecordExperimentStart inserts a new ExperimentRecord.
func (s *Store) RecordExperimentStart(rec *ExperimentRecord) error {
	return s.db.Create(rec).Error
}

// RecordExperimentEnd stamps an experiment's end time.
func (s *Store) RecordExperimentEnd(id uuid.UUID, endedAt time.Time) error {
	return s.db.Model(&ExperimentRecord{}).Where("id = ?", id).Update("ended_at", endedAt).Error
}

// RecordReplication inserts one completed replication's results.
func (s *Store) RecordReplication(rec *ReplicationRecord) error {
	return s.db.Create(rec).Error
}

// Replications returns every replication recorded for an experiment,
// ordered by index.
func (s *Store) Replications(experimentID uuid.UUID) ([]ReplicationRecord, error) {
	var out []ReplicationRecord
	err := s.db.Where("experiment_id = ?", experimentID).Order("index_in_experiment").Find(&out).Error
	return out, err
}

// Experiments returns every recorded experiment, most recent first.
func (s *Store) Experiments() ([]ExperimentRecord, error) {
	var out []ExperimentRecord
	err := s.db.Order("started_at desc").Find(&out).Error
	return out, err
}

func sqliteDSN(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "simkernel.sqlite")
}

func postgresDSN(cfg config.Database) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.DBName)
}
