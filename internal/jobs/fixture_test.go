package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/quality-escalation/internal/directory"
	"github.com/nhle/quality-escalation/internal/logger"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
	"github.com/nhle/quality-escalation/internal/testutil"
)

const (
	aliceEmail = "alice@example.com"
	carolEmail = "carol@example.com"
)

type fixture struct {
	store *store.SQLiteStore
	mail  *testutil.Mailer
	clock *testutil.Clock
	deps  Deps
}

// newFixture seeds two users with email (alice, carol) and one without
// (nomail), with the clock at 2026-06-10 09:00 UTC.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := testutil.NewTestStore(t)
	ctx := context.Background()
	for _, u := range []model.User{
		{ID: "alice", Email: aliceEmail, Name: "Alice"},
		{ID: "carol", Email: carolEmail, Name: "Carol"},
		{ID: "nomail", Name: "No Mail"},
	} {
		require.NoError(t, s.UpsertUser(ctx, u))
	}

	m := testutil.NewMailer()
	clock := testutil.NewClock(time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC))

	return &fixture{
		store: s,
		mail:  m,
		clock: clock,
		deps: Deps{
			Store:     s,
			Directory: directory.New(s),
			Mailer:    m,
			Log:       logger.Discard(),
			Now:       clock.Now,
			Cooldown:  3 * time.Minute,
			Location:  time.UTC,
		}.withDefaults(),
	}
}

func (f *fixture) addObject(t *testing.T, obj model.TrackedObject) {
	t.Helper()
	if obj.Title == "" {
		obj.Title = obj.ID
	}
	require.NoError(t, f.store.UpsertTrackedObject(context.Background(), obj))
}

// overdueRecord is due the day before the fixture clock.
func (f *fixture) overdueRecord(t *testing.T, id, responsible string) {
	t.Helper()
	due := f.clock.Now().AddDate(0, 0, -1)
	f.addObject(t, model.TrackedObject{
		ID:            id,
		Kind:          model.KindQualityRecord,
		DueDate:       &due,
		Status:        model.RecordStatusActive,
		ResponsibleID: responsible,
	})
}

func (f *fixture) notification(t *testing.T, objectID string) *model.Notification {
	t.Helper()
	n, err := f.store.FindNotification(context.Background(), objectID, model.NotificationOverdue)
	require.NoError(t, err)
	return n
}

// failingStore wraps a store and fails selected writes.
type failingStore struct {
	store.Store
	markEmailSent error
	markRead      error
	list          error
}

func (s *failingStore) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	if s.markEmailSent != nil {
		return s.markEmailSent
	}
	return s.Store.MarkEmailSent(ctx, id, at)
}

func (s *failingStore) MarkNotificationsRead(ctx context.Context, ids []string) error {
	if s.markRead != nil {
		return s.markRead
	}
	return s.Store.MarkNotificationsRead(ctx, ids)
}

func (s *failingStore) ListTrackedObjects(ctx context.Context, f store.TrackedFilter) ([]model.TrackedObject, error) {
	if s.list != nil {
		return nil, s.list
	}
	return s.Store.ListTrackedObjects(ctx, f)
}
