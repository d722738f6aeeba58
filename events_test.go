package main

import (
	"net"
	"testing"
	"time"
)

func recvWithTimeout(t *testing.T, tr *Transport) Message {
	t.Helper()
	type result struct {
		msg Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := tr.Read()
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("read: %v", r.err)
		}
		return r.msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Message{}
	}
}

func TestEventPublisherClientJoinedServerGated(t *testing.T) {
	r := NewRegistry()
	flags := DefaultFlags()
	flags.SendServerJoinEvents = false
	pub := NewEventPublisher(r, &flags)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := newUnauthenticatedClient(NewTransport(server), "10.0.0.1", 1)
	c.GUID = "watcher"
	c.LoggedIn = true // only logged-in clients receive server-join events
	r.AddClient(c)

	pub.ClientJoinedServer("subject1")

	done := make(chan struct{})
	go func() {
		NewTransport(client).Read()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("no event should be sent when SendServerJoinEvents is disabled")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventPublisherClientJoinedServerSkipsSubject(t *testing.T) {
	r := NewRegistry()
	flags := DefaultFlags()
	pub := NewEventPublisher(r, &flags)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := newUnauthenticatedClient(NewTransport(server), "10.0.0.1", 1)
	c.GUID = "subject1"
	c.LoggedIn = true // only logged-in clients receive server-join events
	r.AddClient(c)

	pub.ClientJoinedServer("subject1")

	done := make(chan struct{})
	go func() {
		NewTransport(client).Read()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("the subject of the event should not receive its own notification")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEventPublisherChannelDeletedByOwnerUnconditional(t *testing.T) {
	r := NewRegistry()
	flags := DefaultFlags()
	flags.SendChannelEvents = false
	pub := NewEventPublisher(r, &flags)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	ct := NewTransport(client)

	notice := ChannelDeletionNotice{ChannelGUID: "ch1", Subscribers: []string{"sub1"}}
	c := newUnauthenticatedClient(NewTransport(server), "10.0.0.1", 1)
	c.GUID = "sub1"
	r.AddClient(c)

	pub.ChannelDeletedByOwner(notice)

	msg := recvWithTimeout(t, ct)
	if msg.ChannelGUID != "ch1" {
		t.Fatalf("unexpected channel deletion event: %+v", msg)
	}
}
