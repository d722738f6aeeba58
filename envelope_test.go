package main

import "testing"

func TestMessageValidCommand(t *testing.T) {
	m := Message{Command: "Echo"}
	if !m.Valid() {
		t.Fatal("command-only message should be valid")
	}
}

func TestMessageValidPayload(t *testing.T) {
	m := Message{SenderGUID: "s1", RecipientGUID: "r1"}
	if !m.Valid() {
		t.Fatal("directed message with sender should be valid")
	}
}

func TestMessageInvalidBothDestinations(t *testing.T) {
	m := Message{SenderGUID: "s1", RecipientGUID: "r1", ChannelGUID: "c1"}
	if m.Valid() {
		t.Fatal("message naming both recipient and channel should be invalid")
	}
}

func TestMessageInvalidNoDestination(t *testing.T) {
	m := Message{SenderGUID: "s1"}
	if m.Valid() {
		t.Fatal("message naming neither recipient nor channel should be invalid")
	}
}

func TestMessageInvalidMissingSender(t *testing.T) {
	m := Message{RecipientGUID: "r1"}
	if m.Valid() {
		t.Fatal("non-server-origin payload without a sender should be invalid")
	}
}

func TestMessageValidServerOrigin(t *testing.T) {
	m := Message{SenderGUID: ServerGUID.String(), RecipientGUID: "r1"}
	if !m.Valid() {
		t.Fatal("server-origin payload should be valid without needing a sender check")
	}
}

func TestRedactStripsCredentials(t *testing.T) {
	m := Message{Email: "a@example.com", Password: "secret"}.Redact()
	if m.Email != "" || m.Password != "" {
		t.Fatalf("redact left credentials: %+v", m)
	}
}

func TestReplyToMirrorsSyncRequest(t *testing.T) {
	req := Message{MessageID: "m1", SenderGUID: "c1", SyncRequest: true}
	reply := replyTo(req, true, "ok")
	if reply.RecipientGUID != "c1" {
		t.Fatalf("reply recipient = %q, want c1", reply.RecipientGUID)
	}
	if !reply.SyncResponse {
		t.Fatal("reply to a sync request should set SyncResponse")
	}
	if reply.SenderGUID != ServerGUID.String() {
		t.Fatalf("reply sender = %q, want server guid", reply.SenderGUID)
	}
	if !boolValue(reply.Success) {
		t.Fatal("reply should report success")
	}
}

func TestErrorReplyIsUnsuccessful(t *testing.T) {
	req := Message{MessageID: "m1", SenderGUID: "c1"}
	reply := errorReply(req, "nope")
	if boolValue(reply.Success) {
		t.Fatal("error reply should not report success")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := Message{MessageID: "m1", Command: "Echo"}
	b, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MessageID != m.MessageID || got.Command != m.Command {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
}

func TestDecodeMalformedMessage(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatal("expected decode error for malformed input")
	}
}
