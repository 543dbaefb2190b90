// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// lighthouse-bridge relays OpenSimulator group chat to Matrix rooms
// and back as a Matrix application service.
//
// It serves two listeners. The appservice listener receives
// transactions and queries from the homeserver, authenticated with
// the hs_token. The OpenSim listener receives group chat events from
// region taps and the admin calls that enable, resync, disable, and
// list bridges, authenticated with the X-Bridge-Secret header.
//
// Usage:
//
//	lighthouse-bridge --config /etc/lighthouse/config.yaml
//	lighthouse-bridge --config config.yaml --registration > registration.yaml
package main
