package main

import (
	"net"
	"testing"
	"time"
)

func TestHeartbeatSupervisorDisabledReturnsImmediately(t *testing.T) {
	c := newUnauthenticatedClient(nil, "10.0.0.1", 1)
	flags := DefaultFlags()
	flags.HeartbeatIntervalMs = 0
	evicted := false
	h := NewHeartbeatSupervisor(c, &flags, func() { evicted = true })

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		h.Run(done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Run should return immediately when heartbeats are disabled")
	}
	if evicted {
		t.Fatal("disabled supervisor should never evict")
	}
}

func TestHeartbeatSupervisorSendsHeartbeat(t *testing.T) {
	remote, local := net.Pipe()
	defer remote.Close()
	c := newUnauthenticatedClient(NewTransport(local), "10.0.0.1", 1)
	flags := DefaultFlags()
	flags.HeartbeatIntervalMs = 100
	h := NewHeartbeatSupervisor(c, &flags, func() {})

	done := make(chan struct{})
	defer close(done)
	go h.Run(done)

	rt := NewTransport(remote)
	msg, err := rt.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Command != "HeartbeatRequest" {
		t.Fatalf("expected a HeartbeatRequest, got %+v", msg)
	}
	if msg.SenderGUID != ServerGUID.String() {
		t.Fatalf("heartbeat should originate from the server id, got %q", msg.SenderGUID)
	}
}

func TestHeartbeatSupervisorEvictsDeadClient(t *testing.T) {
	_, local := net.Pipe()
	c := newUnauthenticatedClient(NewTransport(local), "10.0.0.1", 1)
	c.closeTransport() // simulate a dead peer: alive() now reports false

	flags := DefaultFlags()
	flags.HeartbeatIntervalMs = 20

	evicted := make(chan struct{})
	h := NewHeartbeatSupervisor(c, &flags, func() {
		select {
		case <-evicted:
		default:
			close(evicted)
		}
	})

	done := make(chan struct{})
	defer close(done)
	go h.Run(done)

	select {
	case <-evicted:
	case <-time.After(time.Second):
		t.Fatal("supervisor should evict a client whose transport is gone")
	}
}
