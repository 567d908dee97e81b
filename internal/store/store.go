package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/quality-escalation/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert collides with an existing
	// dedup key (target object + notification type) or primary key.
	ErrDuplicate = errors.New("duplicate key")

	// ErrStatusChanged is returned by UpdateTrackedStatus when the object is
	// no longer in the expected status.
	ErrStatusChanged = errors.New("status changed concurrently")
)

// TrackedFilter selects tracked objects. Zero-valued fields do not filter.
type TrackedFilter struct {
	Kind model.TrackedKind

	// Statuses keeps only objects in one of these statuses.
	Statuses []string

	// ExcludeStatuses drops objects in any of these statuses.
	ExcludeStatuses []string

	// DueBefore keeps objects whose due date is strictly before it.
	DueBefore *time.Time

	// DueFrom and DueTo keep objects whose due date lies in [DueFrom, DueTo].
	DueFrom *time.Time
	DueTo   *time.Time

	// RequireResponsible drops objects without a responsible party.
	RequireResponsible bool
}

// NotificationFilter selects notifications. Zero-valued fields do not filter.
type NotificationFilter struct {
	UserID     string
	Type       model.NotificationType
	UnreadOnly bool
}

// TrackedStore persists quality records and mandatory forms.
type TrackedStore interface {
	UpsertTrackedObject(ctx context.Context, obj model.TrackedObject) error
	GetTrackedObject(ctx context.Context, id string) (*model.TrackedObject, error)
	ListTrackedObjects(ctx context.Context, filter TrackedFilter) ([]model.TrackedObject, error)

	// UpdateTrackedStatus moves an object from one status to another and
	// fails with ErrStatusChanged if it is not in from anymore.
	UpdateTrackedStatus(ctx context.Context, id, from, to string) error
}

// NotificationStore persists reminder records. All escalation coordination
// state lives here.
type NotificationStore interface {
	// FindNotification returns the notification under the dedup key
	// (objectID, typ) or ErrNotFound.
	FindNotification(ctx context.Context, objectID string, typ model.NotificationType) (*model.Notification, error)

	// CreateNotification inserts n, generating ID and CreatedAt when empty.
	// It returns ErrDuplicate if the dedup key is taken.
	CreateNotification(ctx context.Context, n model.Notification) (model.Notification, error)

	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	ListUnreadByUser(ctx context.Context, userID string) ([]model.Notification, error)

	// MarkEmailSent records a dispatched email for the notification.
	MarkEmailSent(ctx context.Context, id string, at time.Time) error

	// MarkNotificationRead acknowledges a single notification.
	MarkNotificationRead(ctx context.Context, id string) error

	// MarkNotificationsRead acknowledges a batch atomically: either every
	// id transitions or none does.
	MarkNotificationsRead(ctx context.Context, ids []string) error

	DeleteNotification(ctx context.Context, id string) error
}

// UserStore exposes the user directory.
type UserStore interface {
	UpsertUser(ctx context.Context, u model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ReminderStore keeps the per-user manual reminder timestamps used to
// throttle reminders across restarts and instances.
type ReminderStore interface {
	LastReminderAt(ctx context.Context, userID string) (*time.Time, error)
	RecordReminder(ctx context.Context, userID string, at time.Time) error
}

// Store defines the full persistence interface of the escalation engine.
type Store interface {
	TrackedStore
	NotificationStore
	UserStore
	ReminderStore
	Close() error
}

// matchesDue applies the due-date part of a TrackedFilter.
func matchesDue(due *time.Time, f TrackedFilter) bool {
	if f.DueBefore == nil && f.DueFrom == nil && f.DueTo == nil {
		return true
	}
	if due == nil {
		return false
	}
	if f.DueBefore != nil && !due.Before(*f.DueBefore) {
		return false
	}
	if f.DueFrom != nil && due.Before(*f.DueFrom) {
		return false
	}
	if f.DueTo != nil && due.After(*f.DueTo) {
		return false
	}
	return true
}

// countDistinct returns the number of distinct ids.
func countDistinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
