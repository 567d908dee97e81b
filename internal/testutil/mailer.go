package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/nhle/quality-escalation/internal/mailer"
)

// ErrMailDown is the default failure injected by Mailer.FailAll.
var ErrMailDown = errors.New("mail server unavailable")

// Mailer records every message it accepts. Failures can be injected for
// all recipients or for single addresses.
type Mailer struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failAll error
	failTo  map[string]error
}

// NewMailer returns an empty recording mailer.
func NewMailer() *Mailer {
	return &Mailer{failTo: make(map[string]error)}
}

// Send records msg unless a failure is configured for it.
func (m *Mailer) Send(ctx context.Context, msg mailer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	if err, ok := m.failTo[msg.To]; ok {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// FailAll makes every following send fail with err. Pass nil to recover.
func (m *Mailer) FailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

// FailTo makes sends to one address fail with err.
func (m *Mailer) FailTo(to string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTo[to] = err
}

// Sent returns a copy of the accepted messages.
func (m *Mailer) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailer.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// SentTo returns the accepted messages addressed to to.
func (m *Mailer) SentTo(to string) []mailer.Message {
	var out []mailer.Message
	for _, msg := range m.Sent() {
		if msg.To == to {
			out = append(out, msg)
		}
	}
	return out
}

// Reset forgets recorded messages.
func (m *Mailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
