package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ServerGUID is the reserved identifier denoting the broker itself as a
// message sender or recipient.
var ServerGUID = uuid.Nil

// Message is the canonical envelope exchanged between the broker and its
// clients. It is serialized with the JSON-compatible textual encoding named
// in the wire protocol (§4.1, §6): one envelope per framed record.
type Message struct {
	MessageID     string          `json:"MessageId,omitempty"`
	SenderGUID    string          `json:"SenderGuid,omitempty"`
	RecipientGUID string          `json:"RecipientGuid,omitempty"`
	ChannelGUID   string          `json:"ChannelGuid,omitempty"`
	Command       string          `json:"Command,omitempty"`
	CreatedUTC    time.Time       `json:"CreatedUTC,omitempty"`
	Email         string          `json:"Email,omitempty"`
	Password      string          `json:"Password,omitempty"`
	SyncRequest   bool            `json:"SyncRequest,omitempty"`
	SyncResponse  bool            `json:"SyncResponse,omitempty"`
	Success       *bool           `json:"Success,omitempty"`
	Data          json.RawMessage `json:"Data,omitempty"`
}

// NewMessageID returns a fresh, collision-free message identifier.
func NewMessageID() string { return uuid.New().String() }

// NewClientGUID returns a fresh client identifier.
func NewClientGUID() string { return uuid.New().String() }

// IsServerGUID reports whether guid is the reserved all-zero server id. An
// empty guid is also treated as addressing the server.
func IsServerGUID(guid string) bool {
	return guid == "" || guid == ServerGUID.String()
}

// Valid reports whether m satisfies the envelope invariant from spec.md §3:
// a message is valid iff it names a Command, or it names exactly one of
// RecipientGuid/ChannelGuid and a non-empty SenderGuid (server-origin
// messages are exempt from the sender requirement).
func (m Message) Valid() bool {
	if m.Command != "" {
		return true
	}
	hasRecipient := m.RecipientGUID != ""
	hasChannel := m.ChannelGUID != ""
	if hasRecipient == hasChannel {
		// neither or both set — not a valid payload destination
		return false
	}
	if m.SenderGUID == "" && m.SenderGUID != ServerGUID.String() {
		return false
	}
	return true
}

// Redact strips credential fields. The server MUST call this on every
// message before it is relayed or echoed to any peer (spec.md §3, §8).
func (m Message) Redact() Message {
	m.Email = ""
	m.Password = ""
	return m
}

// Encode marshals m to its wire representation.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// DecodeMessage unmarshals a wire record into a Message. A decode failure is
// a Malformed result per §4.1 — callers must not close the connection
// solely because of it.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}

// successPtr returns a pointer to v, for populating Message.Success.
func successPtr(v bool) *bool { return &v }

// boolValue safely dereferences a possibly-nil Success pointer.
func boolValue(p *bool) bool { return p != nil && *p }

// replyTo builds the server-origin reply envelope required by spec.md §4.6:
// scrub credentials, set SenderGuid to the server, set RecipientGuid to the
// original sender, mirror SyncRequest into SyncResponse, stamp CreatedUTC.
func replyTo(req Message, success bool, data any) Message {
	reply := Message{
		MessageID:     req.MessageID,
		SenderGUID:    ServerGUID.String(),
		RecipientGUID: req.SenderGUID,
		CreatedUTC:    time.Now().UTC(),
		SyncResponse:  req.SyncRequest,
		Success:       successPtr(success),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			reply.Data = raw
		}
	}
	return reply.Redact()
}

// errorReply is a convenience wrapper around replyTo for typed error
// envelopes (§7): Success=false, Data carries a human-readable reason.
func errorReply(req Message, reason string) Message {
	return replyTo(req, false, reason)
}
