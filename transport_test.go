package main

import (
	"net"
	"testing"
)

func TestTransportWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewTransport(client)
	st := NewTransport(server)

	done := make(chan error, 1)
	go func() {
		done <- ct.Write(Message{MessageID: "m1", Command: "Echo"})
	}()

	got, err := st.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("write: %v", err)
	}
	if got.MessageID != "m1" || got.Command != "Echo" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestTransportReadMalformedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	st := NewTransport(server)

	go func() {
		// 4-byte length prefix for a 5-byte body, followed by invalid JSON.
		client.Write([]byte{0, 0, 0, 5})
		client.Write([]byte("notjs"))
	}()

	_, err := st.Read()
	if err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestTransportReadFrameTooLarge(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	st := NewTransport(server)

	go func() {
		client.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}()

	_, err := st.Read()
	if err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestTransportIsPeerAliveNonRawConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// net.Pipe connections don't implement syscall.Conn, so IsPeerAlive
	// must fall back to "assume alive" rather than panicking or blocking.
	st := NewTransport(server)
	if !st.IsPeerAlive() {
		t.Fatal("IsPeerAlive should default to true for a non-raw conn")
	}
}
