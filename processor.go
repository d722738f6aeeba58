package main

import (
	"encoding/json"
	"strings"
	"time"
)

// Message Processor: the command dispatch table plus directed/channel
// message routing (spec.md §4.6). One Processor is shared by every
// Connection Worker.
type Processor struct {
	registry  *Registry
	events    *EventPublisher
	flags     *Flags
	auth      Authenticator
	callbacks Callbacks

	// sync is a single, server-wide correlator used for server-initiated
	// synchronous requests to a client (SenderGuid=ServerGuid,
	// SyncRequest=true) — see DESIGN.md for why ownership collapses to one
	// instance rather than per-client: the server is the only "logical
	// caller" that ever awaits a reply through this path; peer-to-peer
	// sync round trips are the responsibility of the remote client
	// libraries (out of scope) and never touch this correlator.
	sync *SyncCorrelator
}

// NewProcessor wires a Processor over the given collaborators.
func NewProcessor(registry *Registry, events *EventPublisher, flags *Flags, auth Authenticator, callbacks Callbacks) *Processor {
	return &Processor{
		registry:  registry,
		events:    events,
		flags:     flags,
		auth:      auth,
		callbacks: callbacks,
		sync:      NewSyncCorrelator(),
	}
}

// RequestSync sends a server-originated synchronous request to recipientGUID
// and blocks up to timeout for the matching reply (spec.md §4.3, wired per
// DESIGN.md's resolution of the Sync Correlator's role). Only tests call
// it; it is never called from the wire read loop itself.
func (p *Processor) RequestSync(recipientGUID string, data json.RawMessage, timeout time.Duration) (Message, bool) {
	c := p.registry.GetClientByGUID(recipientGUID)
	if c == nil {
		return Message{}, false
	}

	if p.sync.Len() >= maxSyncAwaiters {
		return Message{}, false
	}

	id := NewMessageID()
	if !p.sync.Register(id) {
		return Message{}, false
	}

	req := Message{
		MessageID:     id,
		SenderGUID:    ServerGUID.String(),
		RecipientGUID: recipientGUID,
		SyncRequest:   true,
		CreatedUTC:    time.Now().UTC(),
		Data:          data,
	}
	if err := c.send(req); err != nil {
		p.sync.Await(id, 0) // drain the registration immediately
		return Message{}, false
	}
	return p.sync.Await(id, timeout)
}

// SweepSync removes expired server-initiated sync registrations. main.go
// calls it every 30 seconds with the configured sync timeout.
func (p *Processor) SweepSync(timeout time.Duration) {
	p.sync.Sweep(timeout)
}

// Handle processes one decoded, login-gated message from sender and returns
// the reply to write back to sender directly, or nil for no direct reply
// (spec.md §4.6). Fan-out sends (channel broadcast, events) are scheduled
// internally as independent units of work and are not part of the return
// value.
func (p *Processor) Handle(sender *Client, msg Message) *Message {
	if msg.Command != "" {
		return p.handleCommand(sender, msg)
	}
	return p.handlePayload(sender, msg)
}

func (p *Processor) handleCommand(sender *Client, msg Message) *Message {
	switch {
	case strings.EqualFold(msg.Command, "Echo"):
		return p.handleEcho(sender, msg)
	case strings.EqualFold(msg.Command, "Login"):
		return p.handleLogin(sender, msg)
	case strings.EqualFold(msg.Command, "HeartbeatRequest"):
		return nil // consumed silently, no response required (spec.md §4.5)
	case strings.EqualFold(msg.Command, "JoinChannel"):
		return p.handleJoinChannel(sender, msg)
	case strings.EqualFold(msg.Command, "LeaveChannel"):
		return p.handleLeaveChannel(sender, msg)
	case strings.EqualFold(msg.Command, "CreateChannel"):
		return p.handleCreateChannel(sender, msg)
	case strings.EqualFold(msg.Command, "DeleteChannel"):
		return p.handleDeleteChannel(sender, msg)
	case strings.EqualFold(msg.Command, "ListChannels"):
		return p.handleListChannels(sender, msg)
	case strings.EqualFold(msg.Command, "ListChannelSubscribers"):
		return p.handleListChannelSubscribers(sender, msg)
	case strings.EqualFold(msg.Command, "ListClients"):
		return p.handleListClients(sender, msg)
	case strings.EqualFold(msg.Command, "IsClientConnected"):
		return p.handleIsClientConnected(sender, msg)
	default:
		r := errorReply(msg, "unknown-command")
		return &r
	}
}

func (p *Processor) handleEcho(_ *Client, msg Message) *Message {
	reply := replyTo(msg, true, nil)
	reply.Data = msg.Data
	return &reply
}

// handleLogin implements spec.md §4.6 Login: Registry.UpdateClient, then
// start login-side events. The reply is built first; the OnClientLogin
// callback and the ClientJoinedServer event then run on a goroutine started
// before Handle returns. Nothing orders that goroutine after the caller's
// write of the reply, so other clients may see the event before the
// sender sees its login reply.
func (p *Processor) handleLogin(sender *Client, msg Message) *Message {
	email := msg.Email
	if email == "" || !p.auth.Authenticate(msg.Email, msg.Password) {
		r := errorReply(msg, "invalid-credentials")
		return &r
	}

	guid := msg.SenderGUID
	if guid == "" {
		guid = NewClientGUID()
	}

	updated := p.registry.UpdateClient(guid, email, sender.IP, sender.Port, sender.transport)
	if updated == nil {
		r := errorReply(msg, "login-failed")
		return &r
	}
	// Copy identity fields rather than the whole struct: sender may be a
	// distinct record from updated (reconnect from a new source tuple,
	// spec.md §9), and Client embeds a mutex that must never be copied.
	sender.GUID = updated.GUID
	sender.Email = updated.Email
	sender.IP = updated.IP
	sender.Port = updated.Port
	sender.LoggedIn = updated.LoggedIn
	sender.UpdatedUTC = updated.UpdatedUTC

	reply := replyTo(msg, true, "login successful")
	go func() {
		p.callbacks.OnClientLogin(updated.Snapshot())
		p.events.ClientJoinedServer(updated.GUID)
	}()
	return &reply
}

func (p *Processor) handleJoinChannel(sender *Client, msg Message) *Message {
	ch, ok := p.registry.GetChannelByGUID(msg.ChannelGUID)
	if !ok {
		r := errorReply(msg, "channel-not-found")
		return &r
	}
	if !p.registry.AddChannelSubscriber(ch.GUID, sender.GUID) {
		// Already a subscriber: idempotent success (spec.md §8 round-trip law).
		r := replyTo(msg, true, "join-success")
		return &r
	}
	go p.events.ClientJoinedChannel(ch.GUID, sender.GUID)
	r := replyTo(msg, true, "join-success")
	return &r
}

func (p *Processor) handleLeaveChannel(sender *Client, msg Message) *Message {
	ch, ok := p.registry.GetChannelByGUID(msg.ChannelGUID)
	if !ok {
		r := errorReply(msg, "channel-not-found")
		return &r
	}
	if ch.OwnerGUID == sender.GUID {
		notice, removed := p.registry.RemoveChannel(ch.GUID)
		if !removed {
			r := errorReply(msg, "delete-failure")
			return &r
		}
		go p.events.ChannelDeletedByOwner(notice)
		r := replyTo(msg, true, "delete-success")
		return &r
	}
	if !p.registry.RemoveChannelSubscriber(ch.GUID, sender.GUID) {
		r := replyTo(msg, true, "leave-success") // idempotent: already not a member
		return &r
	}
	go p.events.ClientLeftChannel(ch.GUID, sender.GUID)
	r := replyTo(msg, true, "leave-success")
	return &r
}

// createChannelRequest is the CreateChannel payload shape: either a bare
// JSON string naming the channel (always public), or an object naming the
// channel and its privacy flag (spec.md §3 "privacy flag (0 public /
// 1 private)").
type createChannelRequest struct {
	Name    string `json:"Name"`
	Private int    `json:"Private"`
}

func decodeCreateChannelRequest(data []byte) createChannelRequest {
	var req createChannelRequest
	if err := json.Unmarshal(data, &req); err == nil && req.Name != "" {
		return req
	}
	var name string
	_ = json.Unmarshal(data, &name)
	return createChannelRequest{Name: name}
}

func (p *Processor) handleCreateChannel(sender *Client, msg Message) *Message {
	req := decodeCreateChannelRequest(msg.Data)
	if req.Name == "" {
		r := errorReply(msg, "create-failure")
		return &r
	}
	if _, exists := p.registry.GetChannelByName(req.Name); exists {
		r := errorReply(msg, "already-exists")
		return &r
	}

	private := ChannelPublic
	if req.Private == ChannelPrivate {
		private = ChannelPrivate
	}
	ch := &Channel{GUID: NewMessageID(), Name: req.Name, Private: private}
	if msg.ChannelGUID != "" {
		ch.GUID = msg.ChannelGUID
	}
	if !p.registry.AddChannel(sender.GUID, ch) {
		r := errorReply(msg, "already-exists")
		return &r
	}
	r := replyTo(msg, true, ch.GUID)
	return &r
}

func (p *Processor) handleDeleteChannel(sender *Client, msg Message) *Message {
	ch, ok := p.registry.GetChannelByGUID(msg.ChannelGUID)
	if !ok {
		r := errorReply(msg, "not-found")
		return &r
	}
	if ch.OwnerGUID != sender.GUID {
		// DESIGN.md: non-owner delete is always delete-failure.
		r := errorReply(msg, "delete-failure")
		return &r
	}
	notice, removed := p.registry.RemoveChannel(ch.GUID)
	if !removed {
		r := errorReply(msg, "delete-failure")
		return &r
	}
	go p.events.ChannelDeletedByOwner(notice)
	r := replyTo(msg, true, "delete-success")
	return &r
}

func (p *Processor) handleListChannels(sender *Client, msg Message) *Message {
	all := p.registry.GetAllChannels()
	visible := make([]ChannelSnapshot, 0, len(all))
	for _, ch := range all {
		if ch.Private == ChannelPrivate && ch.OwnerGUID != sender.GUID {
			continue
		}
		visible = append(visible, ch)
	}
	r := replyTo(msg, true, visible)
	return &r
}

func (p *Processor) handleListChannelSubscribers(sender *Client, msg Message) *Message {
	if _, ok := p.registry.GetChannelByGUID(msg.ChannelGUID); !ok {
		r := errorReply(msg, "channel-not-found")
		return &r
	}
	guids := p.registry.GetChannelSubscribers(msg.ChannelGUID)
	subs := make([]ClientSnapshot, 0, len(guids))
	for _, g := range guids {
		if c := p.registry.GetClientByGUID(g); c != nil {
			subs = append(subs, c.scrubbed())
		}
	}
	r := replyTo(msg, true, subs)
	return &r
}

func (p *Processor) handleListClients(_ *Client, msg Message) *Message {
	all := p.registry.GetAllClients()
	scrubbed := make([]ClientSnapshot, len(all))
	for i, c := range all {
		s := c
		s.Email = ""
		scrubbed[i] = s
	}
	r := replyTo(msg, true, scrubbed)
	return &r
}

func (p *Processor) handleIsClientConnected(_ *Client, msg Message) *Message {
	var guid string
	_ = json.Unmarshal(msg.Data, &guid)
	connected := guid != "" && p.registry.IsClientConnected(guid)
	r := replyTo(msg, true, connected)
	return &r
}

// handlePayload routes a non-command message: a directed message if
// RecipientGuid resolves, a channel message if ChannelGuid resolves,
// otherwise recipient-not-found (spec.md §4.6).
func (p *Processor) handlePayload(sender *Client, msg Message) *Message {
	if msg.RecipientGUID != "" {
		return p.sendPrivate(sender, msg)
	}
	if msg.ChannelGUID != "" {
		return p.sendChannel(sender, msg)
	}
	r := errorReply(msg, "recipient-not-found")
	return &r
}

// sendPrivate relays a redacted copy of msg to its recipient. Per spec.md
// §4.6, sync requests/responses never get a send-success/failure
// acknowledgement; ordinary async messages get one iff acks are enabled.
func (p *Processor) sendPrivate(sender *Client, msg Message) *Message {
	// Messages addressed to the reserved server id are server-initiated
	// sync replies, delivered to the correlator rather than relayed —
	// see DESIGN.md's resolution of the Sync Correlator's role.
	if IsServerGUID(msg.RecipientGUID) && msg.SyncResponse {
		p.sync.Deliver(msg)
		return nil
	}

	recipient := p.registry.GetClientByGUID(msg.RecipientGUID)
	if recipient == nil {
		r := errorReply(msg, "recipient-not-found")
		return &r
	}

	out := msg.Redact()
	out.CreatedUTC = time.Now().UTC()
	go func() {
		_ = recipient.send(out)
	}()

	if msg.SyncRequest || msg.SyncResponse {
		return nil
	}
	if !p.flags.SendAcknowledgements {
		return nil
	}
	r := replyTo(msg, true, "send-success")
	return &r
}

// sendChannel fans out a redacted copy of msg to every current subscriber
// of msg.ChannelGuid except the sender, each as an independently scheduled
// delivery (spec.md §4.6, §5).
func (p *Processor) sendChannel(sender *Client, msg Message) *Message {
	ch, ok := p.registry.GetChannelByGUID(msg.ChannelGUID)
	if !ok {
		r := errorReply(msg, "recipient-not-found")
		return &r
	}
	if !p.registry.IsChannelSubscriber(ch.GUID, sender.GUID) {
		r := errorReply(msg, "not-channel-member")
		return &r
	}

	out := msg.Redact()
	out.CreatedUTC = time.Now().UTC()
	subs := p.registry.GetChannelSubscribers(ch.GUID)
	for _, sub := range subs {
		if sub == sender.GUID {
			continue
		}
		recipientGUID := sub
		recipient := p.registry.GetClientByGUID(recipientGUID)
		if recipient == nil {
			continue
		}
		go func() {
			m := out
			m.RecipientGUID = recipientGUID
			_ = recipient.send(m)
		}()
	}

	if !p.flags.SendAcknowledgements {
		return nil
	}
	r := replyTo(msg, true, "send-success")
	return &r
}
