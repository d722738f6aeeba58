package main

import "time"

// HeartbeatSupervisor runs the per-connection liveness loop (spec.md §4.5):
// sleep for the configured interval, probe the transport, send a heartbeat,
// and evict after MaxHeartbeatFailures consecutive write failures. A zero
// interval disables the supervisor entirely.
type HeartbeatSupervisor struct {
	client *Client
	flags  *Flags
	evict  func()
}

// NewHeartbeatSupervisor returns a supervisor for client. evict is called at
// most once, the same teardown the Connection Worker itself uses.
func NewHeartbeatSupervisor(client *Client, flags *Flags, evict func()) *HeartbeatSupervisor {
	return &HeartbeatSupervisor{client: client, flags: flags, evict: evict}
}

// Run drives the loop until done is closed or the client is evicted. Meant
// to be started in its own goroutine alongside the Connection Worker's read
// loop.
func (h *HeartbeatSupervisor) Run(done <-chan struct{}) {
	interval := h.flags.heartbeatInterval()
	if interval <= 0 {
		return // heartbeats disabled (spec.md §6)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.client.alive() {
				h.evict()
				return
			}

			msg := Message{
				MessageID:  NewMessageID(),
				SenderGUID: ServerGUID.String(),
				Command:    "HeartbeatRequest",
				CreatedUTC: time.Now().UTC(),
			}
			if err := h.client.send(msg); err != nil {
				failures++
				if failures >= h.flags.MaxHeartbeatFailures {
					h.evict()
					return
				}
				continue
			}
			failures = 0
		}
	}
}
