package main

import "encoding/json"

// Event types published by the Event Publisher (spec.md §4.7).
const (
	EventClientJoinedServer  = "ClientJoinedServer"
	EventClientLeftServer    = "ClientLeftServer"
	EventClientJoinedChannel = "ClientJoinedChannel"
	EventClientLeftChannel   = "ClientLeftChannel"
)

// eventPayload is the structured record carried in an event message's Data
// field (spec.md §4.7, DESIGN NOTES §9: nested structured events are
// serialized into Data using the same envelope encoding).
type eventPayload struct {
	EventType string `json:"EventType"`
	Data      string `json:"Data"`
}

// EventPublisher derives and fans out server-origin notifications. It holds
// no state of its own beyond references to the components it reads from and
// sends through — every delivery is scheduled independently so one slow or
// dead recipient never blocks another (spec.md §5, §4.7).
type EventPublisher struct {
	registry *Registry
	flags    *Flags
}

// NewEventPublisher returns a publisher backed by registry, honoring flags.
func NewEventPublisher(registry *Registry, flags *Flags) *EventPublisher {
	return &EventPublisher{registry: registry, flags: flags}
}

func encodeEvent(eventType, subjectGUID string) json.RawMessage {
	b, err := json.Marshal(eventPayload{EventType: eventType, Data: subjectGUID})
	if err != nil {
		return nil
	}
	return b
}

func systemEvent(eventType, subjectGUID string) Message {
	return Message{
		SenderGUID: ServerGUID.String(),
		Command:    "",
		Data:       encodeEvent(eventType, subjectGUID),
	}
}

// sendTo delivers msg to recipientGUID as an independently scheduled unit of
// work; a failed or missing recipient is silently skipped (fan-out failures
// must never affect other recipients, spec.md §4.7).
func (p *EventPublisher) sendTo(recipientGUID string, msg Message) {
	c := p.registry.GetClientByGUID(recipientGUID)
	if c == nil {
		return
	}
	go func() {
		m := msg
		m.RecipientGUID = recipientGUID
		_ = c.send(m) // best-effort; a write failure is handled by that
		// client's own Connection Worker / Heartbeat Supervisor, not here.
	}()
}

// ClientJoinedServer notifies every other logged-in client that subjectGUID
// joined, when send-server-join-events is enabled.
func (p *EventPublisher) ClientJoinedServer(subjectGUID string) {
	if !p.flags.SendServerJoinEvents {
		return
	}
	msg := systemEvent(EventClientJoinedServer, subjectGUID)
	for _, c := range p.registry.GetAllClients() {
		if c.GUID == subjectGUID {
			continue
		}
		p.sendTo(c.GUID, msg)
	}
}

// ClientLeftServer notifies every other logged-in client that subjectGUID
// left, when send-server-join-events is enabled.
func (p *EventPublisher) ClientLeftServer(subjectGUID string) {
	if !p.flags.SendServerJoinEvents {
		return
	}
	msg := systemEvent(EventClientLeftServer, subjectGUID)
	for _, c := range p.registry.GetAllClients() {
		if c.GUID == subjectGUID {
			continue
		}
		p.sendTo(c.GUID, msg)
	}
}

// ClientJoinedChannel notifies every other subscriber of channelGUID that
// subjectGUID joined, when send-channel-events is enabled.
func (p *EventPublisher) ClientJoinedChannel(channelGUID, subjectGUID string) {
	if !p.flags.SendChannelEvents {
		return
	}
	msg := systemEvent(EventClientJoinedChannel, subjectGUID)
	msg.ChannelGUID = channelGUID
	for _, sub := range p.registry.GetChannelSubscribers(channelGUID) {
		if sub == subjectGUID {
			continue
		}
		p.sendTo(sub, msg)
	}
}

// ClientLeftChannel notifies every other subscriber of channelGUID that
// subjectGUID left, when send-channel-events is enabled.
func (p *EventPublisher) ClientLeftChannel(channelGUID, subjectGUID string) {
	if !p.flags.SendChannelEvents {
		return
	}
	msg := systemEvent(EventClientLeftChannel, subjectGUID)
	msg.ChannelGUID = channelGUID
	for _, sub := range p.registry.GetChannelSubscribers(channelGUID) {
		if sub == subjectGUID {
			continue
		}
		p.sendTo(sub, msg)
	}
}

// ChannelDeletedByOwner notifies notice.Subscribers unconditionally — it is
// a correctness notification, not an optional event (spec.md §4.7).
func (p *EventPublisher) ChannelDeletedByOwner(notice ChannelDeletionNotice) {
	msg := systemEvent("ChannelDeletedByOwner", notice.ChannelGUID)
	msg.ChannelGUID = notice.ChannelGUID
	for _, sub := range notice.Subscribers {
		p.sendTo(sub, msg)
	}
}
