// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP scaffolding shared by the bridge's
// two listeners: the appservice listener the homeserver pushes
// transactions to, and the OpenSim listener that receives region
// events and admin calls.
//
// [HTTPServer] owns listener lifecycle. Serve binds, signals Ready, and
// on context cancellation drains in-flight requests before returning.
//
// [RequireBearer] and [RequireHeaderSecret] authenticate requests
// against a [secret.Buffer] in constant time. Both reject with 401 and
// an empty body, log the remote address, and never log the presented
// credential.
package service
