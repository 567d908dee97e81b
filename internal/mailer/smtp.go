package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the SMTP server settings for sending reminders.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// SSL selects implicit TLS; otherwise STARTTLS is used when offered.
	SSL bool

	// Timeout bounds one send attempt, dial included.
	Timeout time.Duration
}

// SMTPMailer sends messages through an SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	opts []mail.Option
}

// NewSMTPMailer builds a mailer for cfg. No connection is opened until the
// first Send.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
		mail.WithTLSConfig(tlsConfig),
		mail.WithDialContextFunc(deadlineDialer(cfg.Timeout, cfg.SSL, tlsConfig)),
	}
	if cfg.SSL {
		// The dialer already wraps the connection in TLS.
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	// Validate the options once; Send builds a fresh client per message
	// because a mail.Client holds the state of one connection.
	if _, err := mail.NewClient(cfg.Host, opts...); err != nil {
		return nil, fmt.Errorf("creating SMTP client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &SMTPMailer{cfg: cfg, opts: opts}, nil
}

// deadlineDialer opens connections whose every read and write fails once
// timeout has passed, so a silent server cannot hold a send open.
func deadlineDialer(timeout time.Duration, implicitTLS bool, tlsConfig *tls.Config) mail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		dialer := &net.Dialer{Timeout: timeout}

		var conn net.Conn
		var err error
		if implicitTLS {
			conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, network, address)
		} else {
			conn, err = dialer.DialContext(ctx, network, address)
		}
		if err != nil {
			return nil, err
		}

		deadline := time.Now().Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// Send delivers msg, giving up when ctx ends or the send timeout passes.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	gm := mail.NewMsg()
	if err := gm.From(m.cfg.From); err != nil {
		return fmt.Errorf("setting sender %q: %w", m.cfg.From, err)
	}
	if err := gm.To(msg.To); err != nil {
		return fmt.Errorf("setting recipient %q: %w", msg.To, err)
	}
	gm.Subject(msg.Subject)
	gm.SetDate()
	gm.SetBodyString(mail.TypeTextPlain, msg.Body)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	client, err := mail.NewClient(m.cfg.Host, m.opts...)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, gm); err != nil {
		return fmt.Errorf("sending mail to %s via %s:%d: %w", msg.To, m.cfg.Host, m.cfg.Port, err)
	}
	return nil
}
