// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "sync/atomic"

// Stats is a snapshot of relay activity since start.
type Stats struct {
	OutboundSent    uint64 `json:"outbound_sent"`
	OutboundDropped uint64 `json:"outbound_dropped"`
	OutboundFailed  uint64 `json:"outbound_failed"`
	InboundRelayed  uint64 `json:"inbound_forwarded"`
	InboundDropped  uint64 `json:"inbound_dropped"`
	InboundFailed   uint64 `json:"inbound_failed"`
	RoomsCreated    uint64 `json:"rooms_created"`
	RoomsAdopted    uint64 `json:"rooms_adopted"`
	Resyncs         uint64 `json:"resyncs"`
}

type counters struct {
	outboundSent    atomic.Uint64
	outboundDropped atomic.Uint64
	outboundFailed  atomic.Uint64
	inboundRelayed  atomic.Uint64
	inboundDropped  atomic.Uint64
	inboundFailed   atomic.Uint64
	roomsCreated    atomic.Uint64
	roomsAdopted    atomic.Uint64
	resyncs         atomic.Uint64
}

// Stats returns the current counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		OutboundSent:    b.stats.outboundSent.Load(),
		OutboundDropped: b.stats.outboundDropped.Load(),
		OutboundFailed:  b.stats.outboundFailed.Load(),
		InboundRelayed:  b.stats.inboundRelayed.Load(),
		InboundDropped:  b.stats.inboundDropped.Load(),
		InboundFailed:   b.stats.inboundFailed.Load(),
		RoomsCreated:    b.stats.roomsCreated.Load(),
		RoomsAdopted:    b.stats.roomsAdopted.Load(),
		Resyncs:         b.stats.resyncs.Load(),
	}
}
