// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads lighthouse-bridge configuration.
//
// Configuration comes from exactly one file, named by the --config flag
// or the LIGHTHOUSE_CONFIG environment variable. There is no search
// path. YAML is the primary format; files ending in .json or .jsonc are
// read as JSON with comments and trailing commas allowed.
//
// The file has seven sections: matrix (homeserver connection and
// appservice tokens), opensim (region endpoint and shared secret),
// database (the OpenSim MySQL database), avatar (profile image
// source), store (the bridge's own SQLite file), rooms (power level
// policy), and server (listen addresses, log level, replay window).
//
// Each of the three shared secrets may be written inline or as a path
// in the matching *_file key. ${VAR} and ${VAR:-default} references in
// secrets, paths, and URLs are expanded from the environment at load
// time. [Config.Validate] reports every problem at once.
// [Config.OpenSecrets] moves the secrets into locked memory.
package config
