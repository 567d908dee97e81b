package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/quality-escalation/internal/model"
)

const trackedColumns = `id, kind, title, due_date, status, responsible_id, created_at, updated_at`

// UpsertTrackedObject inserts or updates a quality record or mandatory form.
// Generates a UUID if ID is empty.
func (s *SQLiteStore) UpsertTrackedObject(ctx context.Context, obj model.TrackedObject) error {
	if strings.TrimSpace(obj.Title) == "" {
		return fmt.Errorf("tracked object title must not be empty")
	}
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}
	obj.UpdatedAt = now
	if obj.DueDate != nil {
		due := obj.DueDate.UTC()
		obj.DueDate = &due
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_objects (`+trackedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			title = excluded.title,
			due_date = excluded.due_date,
			status = excluded.status,
			responsible_id = excluded.responsible_id,
			updated_at = excluded.updated_at`,
		obj.ID, string(obj.Kind), obj.Title, obj.DueDate, obj.Status,
		obj.ResponsibleID, obj.CreatedAt.UTC(), obj.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting tracked object %s: %w", obj.ID, err)
	}
	return nil
}

// GetTrackedObject retrieves a single tracked object by ID.
func (s *SQLiteStore) GetTrackedObject(ctx context.Context, id string) (*model.TrackedObject, error) {
	var obj model.TrackedObject
	err := s.db.GetContext(ctx, &obj,
		"SELECT "+trackedColumns+" FROM tracked_objects WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting tracked object %s: %w", id, err)
	}
	return &obj, nil
}

// ListTrackedObjects retrieves tracked objects matching the filter, earliest
// due date first. Kind and status predicates run in SQL; due-date bounds are
// applied on the decoded times so comparisons never depend on the textual
// DATETIME encoding.
func (s *SQLiteStore) ListTrackedObjects(
	ctx context.Context,
	filter TrackedFilter,
) ([]model.TrackedObject, error) {
	var conditions []string
	var args []interface{}

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	if len(filter.ExcludeStatuses) > 0 {
		conditions = append(conditions, "status NOT IN ("+placeholders(len(filter.ExcludeStatuses))+")")
		for _, st := range filter.ExcludeStatuses {
			args = append(args, st)
		}
	}
	if filter.RequireResponsible {
		conditions = append(conditions, "responsible_id <> ''")
	}
	if filter.DueBefore != nil || filter.DueFrom != nil || filter.DueTo != nil {
		conditions = append(conditions, "due_date IS NOT NULL")
	}

	query := "SELECT " + trackedColumns + " FROM tracked_objects"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY due_date ASC, id ASC"

	var rows []model.TrackedObject
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying tracked objects: %w", err)
	}

	objects := rows[:0]
	for _, obj := range rows {
		if matchesDue(obj.DueDate, filter) {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

// UpdateTrackedStatus moves a tracked object from status from to status to.
// It returns ErrStatusChanged when the object is no longer in from, which
// lets two racing scans agree on a single winner.
func (s *SQLiteStore) UpdateTrackedStatus(ctx context.Context, id, from, to string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tracked_objects SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("updating status of %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("tracked object %s not in status %s: %w", id, from, ErrStatusChanged)
	}
	return nil
}
