package model

import "time"

// TrackedKind identifies the business record family a TrackedObject
// belongs to.
type TrackedKind string

const (
	KindQualityRecord TrackedKind = "quality_record"
	KindMandatoryForm TrackedKind = "mandatory_form"
)

// Quality record status constants.
const (
	RecordStatusActive     = "ACTIVE"
	RecordStatusInProgress = "IN_PROGRESS"
	RecordStatusCompleted  = "COMPLETED"
	RecordStatusValidated  = "VALIDATED"
	RecordStatusClosed     = "CLOSED"
)

// Mandatory form status constants.
const (
	FormStatusPending   = "PENDING"
	FormStatusOverdue   = "OVERDUE"
	FormStatusSubmitted = "SUBMITTED"
)

// TerminalRecordStatuses lists the quality record statuses that take a
// record out of overdue scanning.
var TerminalRecordStatuses = []string{
	RecordStatusCompleted,
	RecordStatusValidated,
	RecordStatusClosed,
}

// TrackedObject is a business record with a due date and a responsible
// party: either a quality record or a mandatory form.
type TrackedObject struct {
	// ID is the unique identifier for this object.
	ID string `json:"id" db:"id"`

	// Kind tells quality records and mandatory forms apart.
	Kind TrackedKind `json:"kind" db:"kind"`

	// Title is the record title or form name.
	Title string `json:"title" db:"title"`

	// DueDate is when the object must be handled by.
	DueDate *time.Time `json:"due_date,omitempty" db:"due_date"`

	// Status is one of the Record* or Form* status constants.
	Status string `json:"status" db:"status"`

	// ResponsibleID identifies the responsible user by id or email.
	ResponsibleID string `json:"responsible_id" db:"responsible_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the object's status excludes it from
// further overdue scanning.
func (o TrackedObject) IsTerminal() bool {
	switch o.Kind {
	case KindMandatoryForm:
		return o.Status == FormStatusSubmitted
	default:
		for _, s := range TerminalRecordStatuses {
			if o.Status == s {
				return true
			}
		}
		return false
	}
}

// User is a directory entry. The engine only reads it.
type User struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`
}
