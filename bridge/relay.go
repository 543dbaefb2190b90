// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/lib/ref"
	"github.com/bureau-foundation/lighthouse/messaging"
)

// Outcome is the result of relaying one group chat line.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeDroppedSystemSender
	OutcomeDroppedEmpty
	OutcomeDroppedNotBridged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeDroppedSystemSender:
		return "dropped_system_sender"
	case OutcomeDroppedEmpty:
		return "dropped_empty"
	case OutcomeDroppedNotBridged:
		return "dropped_not_bridged"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// RelayOutbound sends a group chat line into the group's room as the
// sender's puppet. Messages from the null sender, blank messages, and
// messages for unbridged groups are dropped without a remote call.
// Any failure after the filters is returned and not retried.
func (b *Bridge) RelayOutbound(ctx context.Context, message opensim.GroupMessage) (Outcome, error) {
	if opensim.IsSystemSender(message.SenderID) {
		b.stats.outboundDropped.Add(1)
		return OutcomeDroppedSystemSender, nil
	}
	if strings.TrimSpace(message.Body) == "" {
		b.stats.outboundDropped.Add(1)
		return OutcomeDroppedEmpty, nil
	}

	binding, found, err := b.store.Binding(ctx, message.GroupID)
	if err != nil {
		b.stats.outboundFailed.Add(1)
		return 0, err
	}
	if !found {
		b.stats.outboundDropped.Add(1)
		b.logger.Debug("group not bridged, dropping message", "group_id", message.GroupID)
		return OutcomeDroppedNotBridged, nil
	}

	if err := b.sendAsPuppet(ctx, binding.RoomID, message); err != nil {
		b.stats.outboundFailed.Add(1)
		return 0, fmt.Errorf("relaying message from %s to %s: %w", message.SenderID, binding.RoomID, err)
	}
	b.stats.outboundSent.Add(1)
	return OutcomeSent, nil
}

func (b *Bridge) sendAsPuppet(ctx context.Context, roomID ref.RoomID, message opensim.GroupMessage) error {
	puppet, err := b.EnsureIdentity(ctx, message.SenderID)
	if err != nil {
		return err
	}
	if _, err := b.SyncDisplayName(ctx, puppet, message.SenderName, false); err != nil {
		return err
	}
	if _, err := b.SyncAvatar(ctx, puppet, message.SenderID, false); err != nil {
		return err
	}
	if err := b.EnsureMembership(ctx, roomID, puppet); err != nil {
		return err
	}
	if _, err := b.SyncAuthority(ctx, roomID, puppet, message.GroupID, message.SenderID, false); err != nil {
		return err
	}

	eventID, err := b.session.As(puppet).SendMessage(ctx, roomID, messaging.NewTextMessage(message.Body))
	if err != nil {
		return err
	}
	b.logger.Info("relayed group message to matrix",
		"group_id", message.GroupID,
		"room_id", roomID,
		"user_id", puppet,
		"event_id", eventID,
	)
	return nil
}

// TransactionReport counts what happened to the events of one
// appservice transaction.
type TransactionReport struct {
	Forwarded int `json:"forwarded"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
}

// HandleTransaction forwards the human-authored text messages of a
// transaction to the region. Events are handled in order and
// independently; a failing event is logged and counted.
func (b *Bridge) HandleTransaction(ctx context.Context, transaction messaging.Transaction) TransactionReport {
	var report TransactionReport
	for index, raw := range transaction.Events {
		event, err := messaging.ParseEvent(raw)
		if err != nil {
			report.Failed++
			b.stats.inboundFailed.Add(1)
			b.logger.Error("inbound event undecodable", "index", index, "error", err)
			continue
		}
		forwarded, err := b.relayInbound(ctx, event)
		switch {
		case err != nil:
			report.Failed++
			b.stats.inboundFailed.Add(1)
			b.logger.Error("inbound relay failed",
				"index", index,
				"event_id", event.EventID,
				"room_id", event.RoomID,
				"error", err,
			)
		case forwarded:
			report.Forwarded++
			b.stats.inboundRelayed.Add(1)
		default:
			report.Dropped++
			b.stats.inboundDropped.Add(1)
		}
	}
	return report
}

// relayInbound reports whether event was forwarded. Filtered events
// return false and no error.
func (b *Bridge) relayInbound(ctx context.Context, event messaging.Event) (bool, error) {
	if event.Type != ref.EventTypeMessage.String() {
		return false, nil
	}

	sender, err := ref.ParseUserID(event.Sender)
	if err != nil {
		return false, fmt.Errorf("event sender: %w", err)
	}
	if b.namespace.Classify(sender) != IdentityExternal {
		return false, nil
	}

	content, err := event.MessageContent()
	if err != nil {
		return false, fmt.Errorf("event content: %w", err)
	}
	if content.MsgType != messaging.MsgTypeText {
		return false, nil
	}
	body := strings.TrimSpace(content.Body)
	if body == "" {
		return false, nil
	}

	roomID, err := ref.ParseRoomID(event.RoomID)
	if err != nil {
		return false, fmt.Errorf("event room: %w", err)
	}
	groupID, found, err := b.store.GroupForRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	fromName := strings.TrimSpace(event.Unsigned.SenderDisplayName)
	if fromName == "" {
		fromName = sender.String()
	}

	request := opensim.InjectRequest{
		GroupUUID: groupID.String(),
		FromName:  fromName,
		Message:   body,
	}
	if err := b.region.Inject(ctx, request); err != nil {
		return false, fmt.Errorf("forwarding to region: %w", err)
	}

	b.logger.Info("relayed matrix message to group",
		"group_id", groupID,
		"room_id", roomID,
		"sender", sender,
		"event_id", event.EventID,
	)
	return true, nil
}
