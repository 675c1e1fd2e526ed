// Copyright 2026 The Matchbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the matchbot
// daemon.
//
// Configuration comes from a single YAML file named by either the
// MATCHBOT_CONFIG environment variable or the --config flag. There is
// no search path and no automatic discovery; every deployed value is
// visible in one auditable file. Absent keys take the defaults from
// Default(), which match the constants the original bot shipped with
// (five-minute cooldowns, three-minute channel lifetime).
//
// Durations are written in Go syntax ("5m", "15s"). The seat cap
// counts the host: max_seats 4 means a host plus three guests.
package config
