package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/quality-escalation/internal/mailer"
)

const nameReminder = "reminder"

// DefaultReminderText is mailed when the operator supplies no message.
const DefaultReminderText = "You have a pending notification that needs your attention."

// ErrThrottled is returned when a user was reminded less than one cooldown
// ago.
var ErrThrottled = errors.New("reminder throttled")

// Reminders sends operator-initiated reminders. The per-user throttle is
// kept in the store so it holds across restarts and instances.
type Reminders struct {
	deps Deps
}

// NewReminders creates the reminder service.
func NewReminders(deps Deps) *Reminders {
	return &Reminders{deps: deps.withDefaults()}
}

// Send mails text to userID unless the user was reminded within the
// cooldown. Failures are returned as *ItemError, throttling as ErrThrottled.
func (r *Reminders) Send(ctx context.Context, userID, text string) error {
	userID = strings.TrimSpace(userID)
	if strings.TrimSpace(text) == "" {
		text = DefaultReminderText
	}

	unlock := r.deps.Locks.Lock("reminder:" + userID)
	defer unlock()

	now := r.deps.Now()
	last, err := r.deps.Store.LastReminderAt(ctx, userID)
	if err != nil {
		return &ItemError{Kind: PersistenceFailure, Job: nameReminder, ObjectID: userID, Err: err}
	}
	if last != nil && now.Sub(*last) < r.deps.Cooldown {
		wait := r.deps.Cooldown - now.Sub(*last)
		return fmt.Errorf("user %s reminded %s ago, retry in %s: %w",
			userID, now.Sub(*last).Round(time.Second), wait.Round(time.Second), ErrThrottled)
	}

	user, err := r.deps.Directory.Resolve(ctx, userID)
	if err != nil {
		return &ItemError{Kind: resolveKind(err), Job: nameReminder, ObjectID: userID, Err: err}
	}

	if err := send(ctx, r.deps.Mailer, nameReminder, mailer.Reminder(user.Email, user.Name, text)); err != nil {
		return &ItemError{Kind: DispatchFailure, Job: nameReminder, ObjectID: userID, Err: err}
	}

	if err := r.deps.Store.RecordReminder(ctx, userID, now); err != nil {
		// The mail is out; losing the throttle entry only loosens the limit.
		r.deps.Log.WithError(err).WithField("user_id", userID).Error("Recording reminder")
	}
	r.deps.Log.WithField("user_id", userID).Info("Reminder sent")
	return nil
}

// SendTest mails a configuration test message to an arbitrary address.
func (r *Reminders) SendTest(ctx context.Context, to string) error {
	if err := send(ctx, r.deps.Mailer, "mail-test", mailer.Test(to)); err != nil {
		return &ItemError{Kind: DispatchFailure, Job: "mail-test", ObjectID: to, Err: err}
	}
	return nil
}
