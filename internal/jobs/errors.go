package jobs

import (
	"errors"
	"fmt"

	"github.com/nhle/quality-escalation/internal/directory"
)

// FailureKind classifies why one item of a pass was not handled.
type FailureKind int

const (
	// LookupFailure: the responsible user or their email is missing. The
	// item is skipped and the pass continues.
	LookupFailure FailureKind = iota + 1
	// DispatchFailure: the mail transport rejected the message. Stored
	// state is left as it was so the next tick retries.
	DispatchFailure
	// PersistenceFailure: a store read or write failed.
	PersistenceFailure
)

func (k FailureKind) String() string {
	switch k {
	case LookupFailure:
		return "lookup"
	case DispatchFailure:
		return "dispatch"
	case PersistenceFailure:
		return "persistence"
	}
	return "unknown"
}

// ItemError is the failure of a single object or user within a pass.
type ItemError struct {
	Kind     FailureKind
	Job      string
	ObjectID string
	Err      error
}

func (e *ItemError) Error() string {
	if e.ObjectID == "" {
		return fmt.Sprintf("%s: %s failure: %v", e.Job, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s failure for %s: %v", e.Job, e.Kind, e.ObjectID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

func hasKind(err error, kind FailureKind) bool {
	var ie *ItemError
	return errors.As(err, &ie) && ie.Kind == kind
}

// IsLookupFailure reports whether err wraps a LookupFailure.
func IsLookupFailure(err error) bool { return hasKind(err, LookupFailure) }

// IsDispatchFailure reports whether err wraps a DispatchFailure.
func IsDispatchFailure(err error) bool { return hasKind(err, DispatchFailure) }

// IsPersistenceFailure reports whether err wraps a PersistenceFailure.
func IsPersistenceFailure(err error) bool { return hasKind(err, PersistenceFailure) }

// resolveKind tells directory misses apart from store errors raised while
// resolving.
func resolveKind(err error) FailureKind {
	if errors.Is(err, directory.ErrUserNotFound) || errors.Is(err, directory.ErrNoEmail) {
		return LookupFailure
	}
	return PersistenceFailure
}
