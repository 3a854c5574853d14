package sync

import (
	"encoding/json"
	stdsync "sync"
)

// Peer is one connected dashboard socket. Writes are serialized so frames
// from concurrent publishes do not interleave.
type Peer struct {
	mu      stdsync.Mutex
	encoder *json.Encoder
}

// NewPeer wraps a JSON encoder as a hub peer.
func NewPeer(encoder *json.Encoder) *Peer {
	return &Peer{encoder: encoder}
}

// WriteFrame encodes one frame to the peer.
func (p *Peer) WriteFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Hub fans request updates out to the dashboards watching each sender.
type Hub struct {
	mu    stdsync.Mutex
	rooms map[string]*senderRoom
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*senderRoom)}
}

type senderRoom struct {
	mu           stdsync.Mutex
	senderEmail  string
	nextSequence int64
	subscribers  map[*Peer]struct{}
}

func (h *Hub) room(senderEmail string) *senderRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[senderEmail]
	if ok {
		return room
	}
	room = &senderRoom{senderEmail: senderEmail, subscribers: make(map[*Peer]struct{})}
	h.rooms[senderEmail] = room
	return room
}

// Join subscribes a peer to a sender's updates and returns the latest
// sequence number the room has published.
func (h *Hub) Join(senderEmail string, peer *Peer) int64 {
	room := h.room(senderEmail)
	room.mu.Lock()
	room.subscribers[peer] = struct{}{}
	latest := room.nextSequence
	room.mu.Unlock()
	return latest
}

// Leave unsubscribes a peer. Empty rooms are dropped.
func (h *Hub) Leave(senderEmail string, peer *Peer) {
	room := h.room(senderEmail)
	room.mu.Lock()
	delete(room.subscribers, peer)
	empty := len(room.subscribers) == 0
	room.mu.Unlock()
	if empty {
		h.mu.Lock()
		if current, ok := h.rooms[senderEmail]; ok && current == room {
			delete(h.rooms, senderEmail)
		}
		h.mu.Unlock()
	}
}

// Publish sends one update to every dashboard watching the sender. Peers
// whose write fails are dropped from the room; a dashboard that lost its
// socket recovers through its polling fallback.
func (h *Hub) Publish(senderEmail string, update Update) {
	room := h.room(senderEmail)

	room.mu.Lock()
	room.nextSequence++
	frame := Frame{
		Type:        FrameTypeUpdate,
		SenderEmail: senderEmail,
		Update:      update,
		Sequence:    room.nextSequence,
	}
	subscribers := make([]*Peer, 0, len(room.subscribers))
	for subscriber := range room.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	room.mu.Unlock()

	for _, subscriber := range subscribers {
		if err := subscriber.WriteFrame(frame); err != nil {
			h.Leave(senderEmail, subscriber)
		}
	}
}

// SubscriberCount reports how many peers watch a sender.
func (h *Hub) SubscriberCount(senderEmail string) int {
	h.mu.Lock()
	room, ok := h.rooms[senderEmail]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.subscribers)
}
