package gateway

import (
	"time"

	"github.com/golang/glog"

	collab "github.com/sermonsmith/collab"
)

// Broadcaster fans out events to every connection joined to a channel on
// this gateway instance. Delivery is best-effort, at-most-once: a connection
// that cannot accept the frame is logged and skipped, never blocking the
// rest.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast delivers payload to every member of the channel except the
// optionally excluded originator.
func (b *Broadcaster) Broadcast(channelKey string, payload []byte, exclude *Conn) {
	for _, c := range b.registry.Members(channelKey) {
		if c == exclude {
			continue
		}
		if !c.trySend(payload) {
			glog.Warningf("gateway: dropping frame for %s on %s: send queue full or connection closed",
				c.principal.UserID, channelKey)
		}
	}
}

// Announce builds, encodes, and broadcasts one collaboration event.
func (b *Broadcaster) Announce(channelKey, event, userID string, data any, exclude *Conn) {
	payload, err := collab.EncodeCollaboration(collab.CollaborationEvent{
		Event:     event,
		SessionID: channelKey,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      data,
	})
	if err != nil {
		glog.Errorf("gateway: encoding %s event: %v", event, err)
		return
	}
	b.Broadcast(channelKey, payload, exclude)
}
