// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for lighthouse-bridge.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected with
// -ldflags -X at build time and default to placeholders in development
// builds. [Info] is the --version line; [UserAgent] is sent on every
// outbound HTTP request so homeserver and region logs identify the
// bridge build.
package version
