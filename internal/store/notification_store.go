package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/quality-escalation/internal/model"
)

const notificationColumns = `id, user_id, target_object_id, type, message, read, created_at, last_email_sent_at`

// FindNotification returns the notification stored under the dedup key
// (objectID, typ).
func (s *SQLiteStore) FindNotification(
	ctx context.Context,
	objectID string,
	typ model.NotificationType,
) (*model.Notification, error) {
	var n model.Notification
	err := s.db.GetContext(ctx, &n,
		"SELECT "+notificationColumns+" FROM notifications WHERE target_object_id = ? AND type = ?",
		objectID, string(typ),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s notification for %s: %w", typ, objectID, err)
	}
	return &n, nil
}

// CreateNotification inserts a new notification record. Generates a UUID if
// ID is empty and stamps CreatedAt if unset.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) (model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()
	if n.LastEmailSentAt != nil {
		at := n.LastEmailSentAt.UTC()
		n.LastEmailSentAt = &at
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.TargetObjectID, string(n.Type), n.Message,
		boolToInt(n.Read), n.CreatedAt, n.LastEmailSentAt,
	)
	if isUniqueViolation(err) {
		return model.Notification{}, fmt.Errorf("creating notification: %w", ErrDuplicate)
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("creating notification: %w", err)
	}

	return n, nil
}

// GetNotification retrieves a single notification by ID.
func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := s.db.GetContext(ctx, &n,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return &n, nil
}

// ListNotifications retrieves notifications matching the filter, oldest first.
func (s *SQLiteStore) ListNotifications(
	ctx context.Context,
	filter NotificationFilter,
) ([]model.Notification, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = 0")
	}

	query := "SELECT " + notificationColumns + " FROM notifications"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var notifications []model.Notification
	if err := s.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return notifications, nil
}

// ListUnreadByUser retrieves the unread notifications of one user,
// oldest first.
func (s *SQLiteStore) ListUnreadByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	return s.ListNotifications(ctx, NotificationFilter{UserID: userID, UnreadOnly: true})
}

// MarkEmailSent records that an email was dispatched for the notification.
func (s *SQLiteStore) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET last_email_sent_at = ? WHERE id = ?",
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking email sent for notification %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkNotificationsRead marks a batch of notifications as read in one
// transaction. The transaction is rolled back with ErrNotFound when any id
// does not exist.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE notifications SET read = 1 WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building mark-read query: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("marking %d notifications as read: %w", len(ids), err)
	}
	want := countDistinct(ids)
	if rows, _ := result.RowsAffected(); rows != int64(want) {
		return fmt.Errorf("marking %d notifications as read, %d matched: %w", want, rows, ErrNotFound)
	}

	return tx.Commit()
}

// DeleteNotification removes a notification by ID.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return nil
}
