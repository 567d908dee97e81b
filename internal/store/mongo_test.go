package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
)

// newMongoStore connects to ESCALATION_TEST_MONGO_URI using a throwaway
// database, or skips the test.
func newMongoStore(t *testing.T) *store.MongoStore {
	t.Helper()
	uri := os.Getenv("ESCALATION_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ESCALATION_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := store.NewMongoStore(ctx, uri, "escalation_test_"+uuid.New().String()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMongoStoreDedupAndStatus(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()

	n := model.Notification{
		UserID: "u1", TargetObjectID: ptr("rec-1"), Type: model.NotificationOverdue, Message: "m",
	}
	created, err := s.CreateNotification(ctx, n)
	require.NoError(t, err)
	_, err = s.CreateNotification(ctx, n)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	found, err := s.FindNotification(ctx, "rec-1", model.NotificationOverdue)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	require.NoError(t, s.MarkNotificationsRead(ctx, []string{created.ID}))
	unread, err := s.ListUnreadByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unread)

	require.NoError(t, s.UpsertTrackedObject(ctx, model.TrackedObject{
		ID: "f1", Kind: model.KindMandatoryForm, Title: "form", Status: model.FormStatusPending,
	}))
	require.NoError(t, s.UpdateTrackedStatus(ctx, "f1", model.FormStatusPending, model.FormStatusOverdue))
	assert.ErrorIs(t, s.UpdateTrackedStatus(ctx, "f1", model.FormStatusPending, model.FormStatusOverdue), store.ErrStatusChanged)
}

func TestMongoStoreMarkNotificationsReadIsAllOrNothing(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := s.CreateNotification(ctx, model.Notification{
			UserID: "u1", Type: model.NotificationGeneric, Message: "m",
		})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	err := s.MarkNotificationsRead(ctx, append(ids[:2:2], "missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	unread, err := s.ListUnreadByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, unread, 3, "transactional=%v", s.Transactional())

	require.NoError(t, s.MarkNotificationsRead(ctx, ids))
	unread, err = s.ListUnreadByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMongoStoreUserByEmailIgnoresCase(t *testing.T) {
	s := newMongoStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertUser(ctx, model.User{ID: "u1", Email: "Bob@Example.com"}))
	u, err := s.GetUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}
