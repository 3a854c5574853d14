// Package notify queues and delivers outbound signer notifications.
package notify

import (
	"context"
	"log"
	"strings"
)

// EventKind identifies one class of outbound notification.
type EventKind string

const (
	KindInvite    EventKind = "invite"
	KindReminder  EventKind = "reminder"
	KindViewed    EventKind = "viewed"
	KindSigned    EventKind = "signed"
	KindDeclined  EventKind = "declined"
	KindVoided    EventKind = "voided"
	KindCompleted EventKind = "completed"
	KindExpired   EventKind = "expired"
)

// Message is one outbound notification ready for a transport.
type Message struct {
	Kind           EventKind `json:"kind"`
	RequestID      string    `json:"request_id"`
	SignerID       string    `json:"signer_id,omitempty"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body,omitempty"`
	SigningURL     string    `json:"signing_url,omitempty"`
	CcEmails       []string  `json:"cc_emails,omitempty"`
}

// Sender delivers one message over a concrete transport.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, message Message) error

// Send calls the wrapped function.
func (f SenderFunc) Send(ctx context.Context, message Message) error {
	return f(ctx, message)
}

// LogSender writes deliveries to the process log. It stands in for an email
// provider in development and tests.
type LogSender struct{}

// Send logs the message instead of delivering it.
func (LogSender) Send(_ context.Context, message Message) error {
	cc := ""
	if len(message.CcEmails) > 0 {
		cc = " cc=" + strings.Join(message.CcEmails, ",")
	}
	log.Printf("notify: kind=%s request=%s signer=%s to=%s subject=%q%s",
		message.Kind, message.RequestID, message.SignerID, message.RecipientEmail, message.Subject, cc)
	return nil
}
