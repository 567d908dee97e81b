package model

import "time"

// NotificationType classifies why a notification was raised.
type NotificationType string

const (
	NotificationOverdue      NotificationType = "OVERDUE"
	NotificationFormOverdue  NotificationType = "FORM_OVERDUE"
	NotificationDeadlineSoon NotificationType = "DEADLINE_SOON"
	NotificationGeneric      NotificationType = "GENERIC"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationOverdue, NotificationFormOverdue,
		NotificationDeadlineSoon, NotificationGeneric:
		return true
	}
	return false
}

// Notification is a reminder addressed to a single user. For a given
// (TargetObjectID, Type) pair at most one row exists; that pair is the
// escalation dedup key.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// UserID is the user the reminder is addressed to.
	UserID string `json:"user_id" db:"user_id"`

	// TargetObjectID links this notification to the tracked object it
	// escalates, if any.
	TargetObjectID *string `json:"target_object_id,omitempty" db:"target_object_id"`

	// Type identifies the condition that raised the notification.
	Type NotificationType `json:"type" db:"type"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// Read is set by the user acknowledging the notification, or by the
	// digest once the message has been mailed. Scans never set it.
	Read bool `json:"read" db:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// LastEmailSentAt is the time of the last email actually dispatched
	// for this notification.
	LastEmailSentAt *time.Time `json:"last_email_sent_at,omitempty" db:"last_email_sent_at"`
}
