package mailer

import (
	"fmt"
	"strings"
	"time"

	"github.com/nhle/quality-escalation/internal/model"
)

const signature = "Regards,\nQuality Tracking System"

const dateLayout = "2006-01-02"

func formatDue(due *time.Time, loc *time.Location) string {
	if due == nil {
		return "none"
	}
	if loc == nil {
		loc = time.UTC
	}
	return due.In(loc).Format(dateLayout)
}

// OverdueNotice is the in-app notification text for an overdue quality
// record. The digest later mails these texts verbatim.
func OverdueNotice(obj model.TrackedObject, loc *time.Location) string {
	return fmt.Sprintf("Quality record '%s' is overdue (due: %s)", obj.Title, formatDue(obj.DueDate, loc))
}

// OverdueRecord is the escalation email for an overdue quality record.
// Creation and every resend use the same message.
func OverdueRecord(to string, obj model.TrackedObject, loc *time.Location) Message {
	return Message{
		To:      to,
		Subject: "Overdue quality record - " + obj.Title,
		Body: fmt.Sprintf(
			"Hello,\n\n"+
				"The quality record '%s' is overdue.\n\n"+
				"Due date: %s\n"+
				"Current status: %s\n\n"+
				"Please handle this record as soon as possible.\n\n%s",
			obj.Title, formatDue(obj.DueDate, loc), obj.Status, signature,
		),
	}
}

// FormOverdue is the one-time email sent when a mandatory form is flagged
// overdue.
func FormOverdue(to string, obj model.TrackedObject, loc *time.Location) Message {
	return Message{
		To:      to,
		Subject: "Mandatory form overdue - " + obj.Title,
		Body: fmt.Sprintf(
			"Hello,\n\n"+
				"The mandatory form '%s' was due on %s and has not been submitted.\n"+
				"It is now marked as overdue.\n\n%s",
			obj.Title, formatDue(obj.DueDate, loc), signature,
		),
	}
}

// DeadlineSoon warns that a pending mandatory form is about to fall due.
func DeadlineSoon(to string, obj model.TrackedObject, loc *time.Location) Message {
	return Message{
		To:      to,
		Subject: "Deadline approaching - " + obj.Title,
		Body: fmt.Sprintf(
			"Hello,\n\n"+
				"The mandatory form '%s' is due on %s.\n"+
				"Please complete it as soon as possible.\n\n%s",
			obj.Title, formatDue(obj.DueDate, loc), signature,
		),
	}
}

// Digest concatenates the messages of a user's unread notifications,
// oldest first, into one email.
func Digest(to string, notifications []model.Notification) Message {
	lines := make([]string, 0, len(notifications))
	for _, n := range notifications {
		lines = append(lines, "- "+n.Message)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Unread notifications (%d)", len(notifications)),
		Body:    "Hello,\n\nYou have unread notifications:\n\n" + strings.Join(lines, "\n") + "\n\n" + signature,
	}
}

// Reminder is an operator-initiated reminder to one user.
func Reminder(to, name, text string) Message {
	greeting := "Hello"
	if name != "" {
		greeting += " " + name
	}
	return Message{
		To:      to,
		Subject: "Reminder",
		Body:    greeting + ",\n\n" + text + "\n\n" + signature,
	}
}

// Test checks mail settings end to end.
func Test(to string) Message {
	return Message{
		To:      to,
		Subject: "Mail configuration test",
		Body:    "This message confirms that the escalation engine can deliver email.\n\n" + signature,
	}
}
