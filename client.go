package main

import (
	"io"
	"strconv"
	"sync"
	"time"
)

// Client is a connected peer. Before login it is addressable only by its
// source (ip, port); after login its Guid/Email are authoritative. The
// Registry owns the canonical copy; a Connection Worker holds a borrowed
// reference whose validity ends at eviction (spec.md §3).
type Client struct {
	GUID     string
	Email    string
	IP       string
	Port     int
	LoggedIn bool

	CreatedUTC time.Time
	UpdatedUTC time.Time

	// transport is the framed connection handle. Owned exclusively by the
	// Connection Worker; the Registry only ever swaps the pointer, never
	// reads or writes through it.
	transport *Transport

	// writeMu serializes writes to transport so no two writes interleave on
	// the wire (spec.md §5).
	writeMu sync.Mutex
}

// newUnauthenticatedClient builds a Client record for a freshly-accepted
// connection, before login assigns it an identity.
func newUnauthenticatedClient(t *Transport, ip string, port int) *Client {
	now := time.Now().UTC()
	return &Client{
		IP:         ip,
		Port:       port,
		transport:  t,
		CreatedUTC: now,
		UpdatedUTC: now,
	}
}

// sourceKey identifies a client by its source address before it has logged
// in, used by AddClient/UpdateClient collision matching (spec.md §4.2).
func (c *Client) sourceKey() string {
	return c.IP + ":" + strconv.Itoa(c.Port)
}

// send writes one frame to the client's transport. Safe for concurrent use;
// a write failure means the connection is no longer usable and the caller
// must evict (spec.md §4.1).
func (c *Client) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.transport == nil {
		return io.ErrClosedPipe
	}
	return c.transport.Write(msg)
}

// alive reports whether the underlying transport still looks connected.
func (c *Client) alive() bool {
	c.writeMu.Lock()
	t := c.transport
	c.writeMu.Unlock()
	return t != nil && t.IsPeerAlive()
}

// closeTransport tears down the client's transport. Idempotent.
func (c *Client) closeTransport() {
	c.writeMu.Lock()
	t := c.transport
	c.transport = nil
	c.writeMu.Unlock()
	if t != nil {
		t.Close()
	}
}

// replaceTransport swaps in a new transport handle, e.g. when a client
// reconnects through the same (ip, port) before login completes, or from a
// different tuple after login (spec.md §9 Open Question resolution in
// DESIGN.md). Returns the previous transport, if any, so the caller can
// close it.
func (c *Client) replaceTransport(t *Transport) *Transport {
	c.writeMu.Lock()
	old := c.transport
	c.transport = t
	c.writeMu.Unlock()
	return old
}

// ClientSnapshot is an immutable, lock-free copy of a Client's public
// fields, safe to hand to callbacks or serialize for listings (spec.md §4.6
// ListClients/ListChannelSubscribers scrub credentials and transport
// handles by construction — a snapshot simply never carries them).
type ClientSnapshot struct {
	GUID       string    `json:"ClientGuid"`
	Email      string    `json:"Email,omitempty"`
	IP         string    `json:"IP"`
	Port       int       `json:"Port"`
	LoggedIn   bool      `json:"LoggedIn"`
	CreatedUTC time.Time `json:"CreatedUTC"`
	UpdatedUTC time.Time `json:"UpdatedUTC"`
}

// Snapshot copies the client's current public fields.
func (c *Client) Snapshot() ClientSnapshot {
	return ClientSnapshot{
		GUID:       c.GUID,
		Email:      c.Email,
		IP:         c.IP,
		Port:       c.Port,
		LoggedIn:   c.LoggedIn,
		CreatedUTC: c.CreatedUTC,
		UpdatedUTC: c.UpdatedUTC,
	}
}

// scrubbed returns a ClientSnapshot with the Email field removed, for
// listings sent to other clients (only the owning client's own session
// needs to see its Email; peers only ever need the guid).
func (c *Client) scrubbed() ClientSnapshot {
	s := c.Snapshot()
	s.Email = ""
	return s
}
