// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error path for lighthouse-bridge:
// errors returned from run() before or after the structured logger
// exists are printed to stderr and the process exits non-zero.
package process
