// Package escalation decides, for one (object, OVERDUE) dedup key, whether a
// scan should create a reminder, resend it, wait, or stop.
package escalation

import (
	"time"

	"github.com/nhle/quality-escalation/internal/model"
)

// DefaultCooldown is the minimum time between two reminder emails for the
// same unacknowledged notification.
const DefaultCooldown = 3 * time.Minute

// State is the escalation state of a dedup key.
type State int

const (
	// StateNone means no notification exists yet.
	StateNone State = iota
	// StateFresh means an unread notification exists and the cooldown has
	// not elapsed since the last email.
	StateFresh
	// StateDue means an unread notification exists and the cooldown has
	// elapsed, or no email was ever recorded for it.
	StateDue
	// StateAck means the notification was read. Terminal.
	StateAck
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateFresh:
		return "fresh"
	case StateDue:
		return "due"
	case StateAck:
		return "ack"
	}
	return "unknown"
}

// Action is what the caller must do for a dedup key.
type Action int

const (
	// ActionCreate: create the notification and send the first email.
	ActionCreate Action = iota
	// ActionResend: send the email again and bump LastEmailSentAt.
	ActionResend
	// ActionWait: do nothing this tick.
	ActionWait
	// ActionStop: acknowledged, never email again.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionResend:
		return "resend"
	case ActionWait:
		return "wait"
	case ActionStop:
		return "stop"
	}
	return "unknown"
}

// Classify maps the current notification for a dedup key (nil when none
// exists) to its State at now.
func Classify(n *model.Notification, now time.Time, cooldown time.Duration) State {
	switch {
	case n == nil:
		return StateNone
	case n.Read:
		return StateAck
	case n.LastEmailSentAt == nil:
		return StateDue
	case now.Sub(*n.LastEmailSentAt) >= cooldown:
		return StateDue
	default:
		return StateFresh
	}
}

// Decide returns the action for the notification currently stored under a
// dedup key. It does no I/O.
func Decide(n *model.Notification, now time.Time, cooldown time.Duration) Action {
	switch Classify(n, now, cooldown) {
	case StateNone:
		return ActionCreate
	case StateDue:
		return ActionResend
	case StateAck:
		return ActionStop
	default:
		return ActionWait
	}
}
