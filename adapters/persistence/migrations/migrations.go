// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the SQL migration sets for each supported
// database backend, one embed.FS per backend.
package migrations

import "embed"

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// SQLite returns the embedded SQLite migration set.
func SQLite() embed.FS { return sqliteFS }

// Postgres returns the embedded Postgres migration set.
func Postgres() embed.FS { return postgresFS }
