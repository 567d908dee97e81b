package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/credential"
	"github.com/nhle/quality-escalation/internal/mailer"
	"github.com/nhle/quality-escalation/internal/model"
)

// newMailer builds the configured mail transport. For SMTP the password
// comes from the config or, when empty, from the keyring item named by
// mail.password_key.
func newMailer(cfg model.MailConfig, log *logrus.Entry) (mailer.Mailer, error) {
	switch cfg.Transport {
	case "outbox":
		m, err := mailer.NewOutboxMailer(cfg.OutboxDir, cfg.From)
		if err != nil {
			return nil, err
		}
		log.WithField("dir", cfg.OutboxDir).Info("Writing mail to outbox")
		return m, nil
	default:
		password := cfg.Password
		if password == "" && cfg.PasswordKey != "" {
			secret, err := credential.Get(cfg.PasswordKey)
			if err != nil {
				return nil, fmt.Errorf("loading SMTP password: %w", err)
			}
			password = secret
		}
		log.WithFields(logrus.Fields{"host": cfg.Host, "port": cfg.Port}).Info("Sending mail via SMTP")
		m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: password,
			From:     cfg.From,
			SSL:      cfg.SSL,
			Timeout:  cfg.SendTimeout,
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
