// Package sync pushes signing request state to sender dashboards over
// websockets, with a polling fallback when the socket is down.
package sync

import "time"

const (
	// FrameTypeUpdate carries one request status snapshot.
	FrameTypeUpdate = "request.updated"
	// FrameTypeHello acknowledges a subscription.
	FrameTypeHello = "hello"
)

// Frame is the websocket wire envelope.
type Frame struct {
	Type        string `json:"type"`
	SenderEmail string `json:"sender_email,omitempty"`
	Update      Update `json:"update,omitzero"`
	Sequence    int64  `json:"sequence,omitempty"`
}

// Update is one request state snapshot as dashboards consume it. Updates
// carry the aggregate's updated-at stamp so receivers can merge
// last-writer-wins regardless of arrival order.
type Update struct {
	RequestID    string    `json:"request_id"`
	Status       string    `json:"status"`
	SignedCount  int       `json:"signed_count"`
	TotalSigners int       `json:"total_signers"`
	SignerID     string    `json:"signer_id,omitempty"`
	SignerStatus string    `json:"signer_status,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}
