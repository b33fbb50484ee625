// Copyright 2026 Wholegroup
// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the server schema migrations. Migrations are
// numbered and gated by goose's persisted version table; each runs in its
// own transaction, so startup is idempotent and all-or-nothing per step.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
