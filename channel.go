package main

import "time"

// Channel privacy levels (spec.md §3).
const (
	ChannelPublic  = 0
	ChannelPrivate = 1
)

// Channel is a named set of subscriber clients through which a message from
// any member fans out to the rest (spec.md §3). The Registry is the sole
// owner and mutator; Channel itself holds no lock of its own — all access
// goes through the Registry's channels mutex.
type Channel struct {
	GUID       string
	Name       string
	OwnerGUID  string
	Private    int
	CreatedUTC time.Time
	UpdatedUTC time.Time

	// subscribers preserves insertion order and de-duplicates by ClientGuid
	// (invariant 4, spec.md §3). A slice rather than a map keeps snapshot
	// iteration order stable for ListChannelSubscribers.
	subscribers []string
}

// ChannelSnapshot is an immutable copy of a Channel's public fields.
type ChannelSnapshot struct {
	GUID       string    `json:"Guid"`
	Name       string    `json:"Name"`
	OwnerGUID  string    `json:"OwnerGuid"`
	Private    int       `json:"Private"`
	CreatedUTC time.Time `json:"CreatedUTC"`
	UpdatedUTC time.Time `json:"UpdatedUTC"`
	Subscriber int       `json:"SubscriberCount"`
}

func (ch *Channel) snapshot() ChannelSnapshot {
	return ChannelSnapshot{
		GUID:       ch.GUID,
		Name:       ch.Name,
		OwnerGUID:  ch.OwnerGUID,
		Private:    ch.Private,
		CreatedUTC: ch.CreatedUTC,
		UpdatedUTC: ch.UpdatedUTC,
		Subscriber: len(ch.subscribers),
	}
}

// hasSubscriber reports whether guid is already a subscriber.
func (ch *Channel) hasSubscriber(guid string) bool {
	for _, s := range ch.subscribers {
		if s == guid {
			return true
		}
	}
	return false
}

// addSubscriber appends guid if not already present. Returns false if it was
// already a subscriber (invariant 4: no duplicates).
func (ch *Channel) addSubscriber(guid string) bool {
	if ch.hasSubscriber(guid) {
		return false
	}
	ch.subscribers = append(ch.subscribers, guid)
	return true
}

// removeSubscriber drops guid from the subscriber list. Returns false if it
// was not present.
func (ch *Channel) removeSubscriber(guid string) bool {
	for i, s := range ch.subscribers {
		if s == guid {
			ch.subscribers = append(ch.subscribers[:i], ch.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// subscriberList returns a copy of the current subscriber guids.
func (ch *Channel) subscriberList() []string {
	out := make([]string, len(ch.subscribers))
	copy(out, ch.subscribers)
	return out
}
