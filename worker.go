package main

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/time/rate"
)

// ConnectionWorker owns one accepted connection end to end: it reads frames,
// enforces the login gate, dispatches into the Message Processor, and runs
// the eviction path exactly once no matter which signal triggers it
// (spec.md §4.4).
type ConnectionWorker struct {
	client    *Client
	registry  *Registry
	processor *Processor
	events    *EventPublisher
	callbacks Callbacks
	flags     *Flags
	limiter   *rate.Limiter

	heartbeat *HeartbeatSupervisor
	done      chan struct{}
}

// NewConnectionWorker builds a worker for a freshly-accepted client. Call Run
// to drive it to completion; Run always returns after the connection is
// fully evicted.
func NewConnectionWorker(client *Client, registry *Registry, processor *Processor, events *EventPublisher, callbacks Callbacks, flags *Flags) *ConnectionWorker {
	w := &ConnectionWorker{
		client:    client,
		registry:  registry,
		processor: processor,
		events:    events,
		callbacks: callbacks,
		flags:     flags,
		done:      make(chan struct{}),
	}
	if flags.ControlRatePerSec > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(flags.ControlRatePerSec), int(flags.ControlRatePerSec)+1)
	}
	return w
}

// Run is the per-connection read loop (spec.md §4.4): read a frame, apply
// the login gate, dispatch, write any direct reply, repeat until the
// transport fails or is evicted out from under it. It returns only after the
// eviction path has completed.
func (w *ConnectionWorker) Run() {
	w.registry.AddClient(w.client)
	w.registry.TrackIPConnect(w.client.IP)
	w.callbacks.OnClientConnected(w.client.Snapshot())

	w.heartbeat = NewHeartbeatSupervisor(w.client, w.flags, func() { w.evict() })
	go w.heartbeat.Run(w.done)

	defer w.evict()

	for {
		msg, err := w.client.transport.Read()
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				// A decode failure never closes the stream (spec.md §4.1):
				// we have no MessageId to address a reply to, so just log
				// and keep reading.
				w.callbacks.OnLogMessage("malformed frame: " + err.Error())
				continue
			}
			if !errors.Is(err, io.EOF) {
				w.callbacks.OnLogMessage("read error: " + err.Error())
			}
			return
		}

		if w.limiter != nil && !w.limiter.Allow() {
			r := errorReply(msg, "rate-limited")
			_ = w.client.send(r)
			continue
		}

		if !msg.Valid() {
			r := errorReply(msg, "malformed-message")
			_ = w.client.send(r)
			continue
		}

		if !w.client.LoggedIn && !isLoginExempt(msg) {
			r := errorReply(msg, "login-required")
			_ = w.client.send(r)
			continue
		}

		w.callbacks.OnMessageReceived(msg)

		reply := w.processor.Handle(w.client, msg)
		if reply != nil {
			if err := w.client.send(*reply); err != nil {
				return
			}
		}
	}
}

// isLoginExempt reports whether msg may be processed before login completes:
// only the Login command is reachable pre-auth (spec.md §4.4, §8 — any other
// command from an unauthenticated client gets login-required).
func isLoginExempt(msg Message) bool {
	return strings.EqualFold(msg.Command, "Login")
}

// evict runs the idempotent teardown path: remove from the Registry, drop
// any channels the client owned (dispatching the resulting deletion
// notices), publish the server-leave event, and release the transport. Safe
// to call more than once; only the first call does anything (spec.md §4.4).
func (w *ConnectionWorker) evict() {
	select {
	case <-w.done:
		return // already evicted
	default:
		close(w.done)
	}

	w.registry.RemoveClient(w.client)
	w.registry.TrackIPDisconnect(w.client.IP)

	for _, notice := range w.registry.RemoveClientChannels(w.client.GUID) {
		w.events.ChannelDeletedByOwner(notice)
	}

	if w.client.LoggedIn {
		w.events.ClientLeftServer(w.client.GUID)
	}
	w.callbacks.OnClientDisconnected(w.client.Snapshot())

	w.client.closeTransport()
}
