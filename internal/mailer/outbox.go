package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// OutboxMailer writes every message as an RFC 5322 .eml file into a
// directory instead of sending it. Useful for local runs and for checking
// what the jobs would have mailed.
type OutboxMailer struct {
	dir  string
	from string
	now  func() time.Time
}

// NewOutboxMailer creates dir if needed.
func NewOutboxMailer(dir, from string) (*OutboxMailer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating outbox %s: %w", dir, err)
	}
	return &OutboxMailer{dir: dir, from: from, now: time.Now}, nil
}

// Send writes msg to <dir>/<timestamp>-<id>.eml.
func (o *OutboxMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.validate(); err != nil {
		return err
	}

	from, err := mail.ParseAddress(o.from)
	if err != nil {
		return fmt.Errorf("parsing from address %q: %w", o.from, err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parsing recipient %q: %w", msg.To, err)
	}

	now := o.now()
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}

	name := fmt.Sprintf("%s-%s.eml", now.UTC().Format("20060102T150405.000000000"), uuid.New().String()[:8])
	path := filepath.Join(o.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w, err := mail.CreateSingleInlineWriter(f, h)
	if err != nil {
		return fmt.Errorf("writing headers of %s: %w", path, err)
	}
	body := strings.ReplaceAll(msg.Body, "\n", "\r\n")
	if _, err := w.Write([]byte(body)); err != nil {
		w.Close()
		return fmt.Errorf("writing body of %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return f.Sync()
}
