package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/quality-escalation/internal/jobs"
	"github.com/nhle/quality-escalation/internal/logger"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/scheduler"
)

func testConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	dir := t.TempDir()
	return &model.AppConfig{
		Store: model.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "escalation.db")},
		Schedule: model.ScheduleConfig{
			OverdueScan:  time.Hour,
			FormScan:     time.Hour,
			DeadlineScan: time.Hour,
			Digest:       time.Hour,
		},
		Escalation: model.EscalationConfig{
			Cooldown:       3 * time.Minute,
			DeadlineWindow: 24 * time.Hour,
			Location:       "UTC",
		},
		Mail: model.MailConfig{
			Transport:   "outbox",
			OutboxDir:   filepath.Join(dir, "outbox"),
			From:        "quality@example.com",
			SendTimeout: time.Second,
		},
		Log: logger.DefaultConfig(),
	}
}

func outboxFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestAppRunOnceSendsThroughOutbox(t *testing.T) {
	cfg := testConfig(t)
	log, err := logger.New(cfg.Log)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := New(ctx, cfg, log)
	require.NoError(t, err)
	defer a.Close()

	assert.ElementsMatch(t, []string{
		jobs.NameOverdueScan, jobs.NameFormScan, jobs.NameDeadlineScan, jobs.NameDigest,
	}, a.Jobs())

	due := time.Now().UTC().AddDate(0, 0, -3)
	require.NoError(t, a.Store().UpsertUser(ctx, model.User{ID: "alice", Email: "alice@example.com", Name: "Alice"}))
	require.NoError(t, a.Store().UpsertTrackedObject(ctx, model.TrackedObject{
		ID:            "rec-1",
		Kind:          model.KindQualityRecord,
		Title:         "Calibration check",
		DueDate:       &due,
		Status:        model.RecordStatusActive,
		ResponsibleID: "alice",
	}))

	result, err := a.RunOnce(ctx, jobs.NameOverdueScan)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, outboxFiles(t, cfg.Mail.OutboxDir), 1)

	// Inside the cooldown the second pass sends nothing.
	result, err = a.RunOnce(ctx, jobs.NameOverdueScan)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Len(t, outboxFiles(t, cfg.Mail.OutboxDir), 1)

	n, err := a.Store().FindNotification(ctx, "rec-1", model.NotificationOverdue)
	require.NoError(t, err)
	assert.NotNil(t, n.LastEmailSentAt)
}

func TestAppRunOnceUnknownJob(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logger.Discard().Logger)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.RunOnce(context.Background(), "nightly-backup")
	assert.ErrorIs(t, err, scheduler.ErrUnknownJob)
}

func TestAppRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Admin = model.AdminConfig{Enabled: true, Address: "127.0.0.1:0"}

	a, err := New(context.Background(), cfg, logger.Discard().Logger)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRejectsUnknownLocation(t *testing.T) {
	cfg := testConfig(t)
	cfg.Escalation.Location = "Nowhere/Special"

	_, err := New(context.Background(), cfg, logger.Discard().Logger)
	require.Error(t, err)
}
