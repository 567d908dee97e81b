package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/quality-escalation/internal/model"
)

func TestEscalationRows(t *testing.T) {
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	cooldown := 3 * time.Minute
	recordA, recordB, recordC := "rec-a", "rec-b", "rec-c"
	recent := now.Add(-time.Minute)
	old := now.Add(-10 * time.Minute)

	notifications := []model.Notification{
		{UserID: "alice", TargetObjectID: &recordA, Type: model.NotificationOverdue, LastEmailSentAt: &recent},
		{UserID: "alice", TargetObjectID: &recordB, Type: model.NotificationOverdue, LastEmailSentAt: &old},
		{UserID: "carol", TargetObjectID: &recordC, Type: model.NotificationOverdue, Read: true, LastEmailSentAt: &old},
		{UserID: "carol", Type: model.NotificationOverdue},
	}

	rows, states := escalationRows(notifications, now, cooldown, time.UTC)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"fresh", "due", "ack", "due"}, states)
	assert.Equal(t, []string{"rec-a", "alice", "fresh", "2026-06-10 08:59", "2026-06-10 09:02"}, rows[0])
	assert.Equal(t, "next scan", rows[1][4])
	assert.Equal(t, "-", rows[2][4])
	assert.Equal(t, []string{"-", "carol", "due", "never", "next scan"}, rows[3])
}

func TestRunStatusNeedsNoMailCredentials(t *testing.T) {
	cfg := &model.AppConfig{
		Store: model.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "escalation.db")},
		Escalation: model.EscalationConfig{
			Cooldown: 3 * time.Minute,
			Location: "UTC",
		},
		Mail: model.MailConfig{
			Transport:   "smtp",
			Host:        "smtp.example.com",
			Port:        587,
			PasswordKey: "no-such-keyring-item",
			From:        "quality@example.com",
		},
	}

	var out bytes.Buffer
	require.NoError(t, runStatus(context.Background(), &out, cfg))
	assert.Contains(t, out.String(), "No escalations.")
}
