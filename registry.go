package main

import (
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// fold is the Unicode-aware case-folding function used for channel-name
// lookups (SPEC_FULL §4.2), replacing a plain strings.EqualFold so
// non-ASCII channel names compare sensibly.
var fold = cases.Fold()

func foldKey(s string) string { return fold.String(s) }

// ChannelDeletionNotice describes the fan-out the caller must perform after
// a channel is removed: every subscriber other than the owner gets a
// "channel-deleted-by-owner" event (spec.md §3 invariant 3, §4.7).
type ChannelDeletionNotice struct {
	ChannelGUID string
	Subscribers []string // excludes the owner
}

// Registry is the sole authority over client and channel state (spec.md
// §4.2). Clients and channels are protected by independent locks; no
// Registry method calls another Registry method while holding either lock,
// eliminating lock-upgrade deadlocks by construction.
type Registry struct {
	clientsMu sync.RWMutex
	byGUID    map[string]*Client
	bySource  map[string]*Client // "ip:port" -> client, for pre-login lookups

	channelsMu  sync.RWMutex
	channels    map[string]*Channel // guid -> channel
	channelName map[string]string   // fold(name) -> guid

	ipMu    sync.Mutex
	ipConns map[string]int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byGUID:      make(map[string]*Client),
		bySource:    make(map[string]*Client),
		channels:    make(map[string]*Channel),
		channelName: make(map[string]string),
		ipConns:     make(map[string]int),
	}
}

// --- Clients ---------------------------------------------------------------

// AddClient registers c. If an existing unauthenticated record shares
// (ip, port), its transport handle is swapped for c's and its update
// timestamp refreshed instead of inserting a second record — this is the
// design decision that lets a client reconnect through the same source
// tuple before login completes (spec.md §4.2).
func (r *Registry) AddClient(c *Client) bool {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	key := c.sourceKey()
	if existing, ok := r.bySource[key]; ok && !existing.LoggedIn {
		old := existing.replaceTransport(c.transport)
		if old != nil {
			old.Close()
		}
		existing.UpdatedUTC = time.Now().UTC()
		return true
	}

	r.bySource[key] = c
	if c.GUID != "" {
		r.byGUID[c.GUID] = c
	}
	return true
}

// RemoveClient removes c by GUID if set, else by its (ip, port) source.
func (r *Registry) RemoveClient(c *Client) bool {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()
	return r.removeClientLocked(c)
}

func (r *Registry) removeClientLocked(c *Client) bool {
	removed := false
	if c.GUID != "" {
		if _, ok := r.byGUID[c.GUID]; ok {
			delete(r.byGUID, c.GUID)
			removed = true
		}
	}
	key := c.sourceKey()
	if existing, ok := r.bySource[key]; ok && existing == c {
		delete(r.bySource, key)
		removed = true
	}
	return removed
}

// UpdateClient is called by login. It matches by ClientGuid when set,
// otherwise by (ip, port), overwriting identity fields and the transport
// handle (spec.md §4.2). Returns the matched client, or nil if none.
func (r *Registry) UpdateClient(guid, email, ip string, port int, t *Transport) *Client {
	r.clientsMu.Lock()
	defer r.clientsMu.Unlock()

	var target *Client
	if guid != "" {
		target = r.byGUID[guid]
	}
	if target == nil {
		target = r.bySource[(&Client{IP: ip, Port: port}).sourceKey()]
	}
	if target == nil {
		return nil
	}

	// Reassign by source key in case ip/port changed underneath an existing
	// identity (reconnection from a new tuple, spec.md §9).
	delete(r.bySource, target.sourceKey())
	if target.GUID != "" {
		delete(r.byGUID, target.GUID)
	}

	if old := target.replaceTransport(t); old != nil && old != t {
		old.Close()
	}
	target.GUID = guid
	target.Email = email
	target.IP = ip
	target.Port = port
	target.LoggedIn = true
	target.UpdatedUTC = time.Now().UTC()

	r.byGUID[target.GUID] = target
	r.bySource[target.sourceKey()] = target
	return target
}

// GetClientByGUID returns the live client record for guid, or nil.
func (r *Registry) GetClientByGUID(guid string) *Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return r.byGUID[guid]
}

// GetClientBySource returns the live client record for (ip, port), or nil.
func (r *Registry) GetClientBySource(ip string, port int) *Client {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return r.bySource[(&Client{IP: ip, Port: port}).sourceKey()]
}

// IsClientConnected reports whether guid names a currently-registered client.
func (r *Registry) IsClientConnected(guid string) bool {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	_, ok := r.byGUID[guid]
	return ok
}

// GetAllClients returns a snapshot of every logged-in client, safe to
// iterate without external locking.
func (r *Registry) GetAllClients() []ClientSnapshot {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	out := make([]ClientSnapshot, 0, len(r.byGUID))
	for _, c := range r.byGUID {
		if c.LoggedIn {
			out = append(out, c.Snapshot())
		}
	}
	return out
}

// ClientCount returns the number of registered (not necessarily logged-in)
// clients, used for connection-limit bookkeeping.
func (r *Registry) ClientCount() int {
	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()
	return len(r.bySource)
}

// --- Per-IP connection accounting ------------------------------------------

// TrackIPConnect records a new connection from ip.
func (r *Registry) TrackIPConnect(ip string) {
	if ip == "" {
		return
	}
	r.ipMu.Lock()
	r.ipConns[ip]++
	r.ipMu.Unlock()
}

// TrackIPDisconnect records a closed connection from ip.
func (r *Registry) TrackIPDisconnect(ip string) {
	if ip == "" {
		return
	}
	r.ipMu.Lock()
	r.ipConns[ip]--
	if r.ipConns[ip] <= 0 {
		delete(r.ipConns, ip)
	}
	r.ipMu.Unlock()
}

// IPConnectionCount returns the number of currently tracked connections from ip.
func (r *Registry) IPConnectionCount(ip string) int {
	r.ipMu.Lock()
	defer r.ipMu.Unlock()
	return r.ipConns[ip]
}

// --- Channels ----------------------------------------------------------

// AddChannel inserts ch owned by ownerGUID. Fails if ch.GUID already exists
// (spec.md §4.2). On success, ch is stamped with timestamps and seeded with
// the owner as its sole subscriber.
func (r *Registry) AddChannel(ownerGUID string, ch *Channel) bool {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	if _, exists := r.channels[ch.GUID]; exists {
		return false
	}

	now := time.Now().UTC()
	ch.OwnerGUID = ownerGUID
	ch.CreatedUTC = now
	ch.UpdatedUTC = now
	ch.subscribers = nil
	ch.addSubscriber(ownerGUID)

	r.channels[ch.GUID] = ch
	r.channelName[foldKey(ch.Name)] = ch.GUID
	return true
}

// RemoveChannel removes ch and returns the notice the caller must dispatch
// to every other subscriber (spec.md §3 invariant 3, §4.2). Removing a
// channel with no other subscribers succeeds with an empty notice.
func (r *Registry) RemoveChannel(channelGUID string) (ChannelDeletionNotice, bool) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	ch, ok := r.channels[channelGUID]
	if !ok {
		return ChannelDeletionNotice{}, false
	}

	notice := ChannelDeletionNotice{ChannelGUID: channelGUID}
	for _, sub := range ch.subscribers {
		if sub != ch.OwnerGUID {
			notice.Subscribers = append(notice.Subscribers, sub)
		}
	}

	delete(r.channels, channelGUID)
	if r.channelName[foldKey(ch.Name)] == channelGUID {
		delete(r.channelName, foldKey(ch.Name))
	}
	return notice, true
}

// AddChannelSubscriber adds clientGUID to channelGUID's subscriber set.
// Returns false if the channel doesn't exist or the client already
// subscribes (invariant 4: no duplicates).
func (r *Registry) AddChannelSubscriber(channelGUID, clientGUID string) bool {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	ch, ok := r.channels[channelGUID]
	if !ok {
		return false
	}
	return ch.addSubscriber(clientGUID)
}

// RemoveChannelSubscriber removes clientGUID from channelGUID's subscriber
// set. Returns false if the channel or subscription doesn't exist.
func (r *Registry) RemoveChannelSubscriber(channelGUID, clientGUID string) bool {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()
	ch, ok := r.channels[channelGUID]
	if !ok {
		return false
	}
	return ch.removeSubscriber(clientGUID)
}

// IsChannelSubscriber reports whether clientGUID currently subscribes to
// channelGUID.
func (r *Registry) IsChannelSubscriber(channelGUID, clientGUID string) bool {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[channelGUID]
	if !ok {
		return false
	}
	return ch.hasSubscriber(clientGUID)
}

// GetChannelByGUID returns a snapshot of the channel, or ok=false.
func (r *Registry) GetChannelByGUID(guid string) (ChannelSnapshot, bool) {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[guid]
	if !ok {
		return ChannelSnapshot{}, false
	}
	return ch.snapshot(), true
}

// GetChannelByName looks up a channel by case-insensitive name.
func (r *Registry) GetChannelByName(name string) (ChannelSnapshot, bool) {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	guid, ok := r.channelName[foldKey(name)]
	if !ok {
		return ChannelSnapshot{}, false
	}
	ch := r.channels[guid]
	return ch.snapshot(), true
}

// GetAllChannels returns a snapshot of every channel.
func (r *Registry) GetAllChannels() []ChannelSnapshot {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	out := make([]ChannelSnapshot, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch.snapshot())
	}
	return out
}

// GetChannelSubscribers returns a snapshot of channelGUID's subscriber GUIDs.
func (r *Registry) GetChannelSubscribers(channelGUID string) []string {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()
	ch, ok := r.channels[channelGUID]
	if !ok {
		return nil
	}
	return ch.subscriberList()
}

// RemoveClientChannels removes every channel owned by clientGUID and returns
// one deletion notice per removed channel, for the caller to dispatch
// (spec.md §4.2 RemoveClientChannels).
func (r *Registry) RemoveClientChannels(clientGUID string) []ChannelDeletionNotice {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	var notices []ChannelDeletionNotice
	for guid, ch := range r.channels {
		if ch.OwnerGUID != clientGUID {
			continue
		}
		notice := ChannelDeletionNotice{ChannelGUID: guid}
		for _, sub := range ch.subscribers {
			if sub != ch.OwnerGUID {
				notice.Subscribers = append(notice.Subscribers, sub)
			}
		}
		delete(r.channels, guid)
		if r.channelName[foldKey(ch.Name)] == guid {
			delete(r.channelName, foldKey(ch.Name))
		}
		notices = append(notices, notice)
	}
	return notices
}
