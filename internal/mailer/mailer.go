// Package mailer dispatches plain-text emails. It performs no retries:
// callers decide what a failed send means for their own state.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRecipient is returned when a message has no To address.
var ErrNoRecipient = errors.New("message has no recipient")

// Message is a single plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a message synchronously. A nil error means the transport
// accepted the message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("header injection in message to %q", m.To)
	}
	return nil
}
