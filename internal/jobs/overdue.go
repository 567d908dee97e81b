package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/escalation"
	"github.com/nhle/quality-escalation/internal/mailer"
	"github.com/nhle/quality-escalation/internal/metrics"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
)

// OverdueScan escalates quality records whose due date is before today.
// Each record gets at most one OVERDUE notification; its email is resent
// every cooldown until the notification is read.
type OverdueScan struct {
	deps Deps
}

// NewOverdueScan creates the overdue-record scan.
func NewOverdueScan(deps Deps) *OverdueScan {
	return &OverdueScan{deps: deps.withDefaults()}
}

// Name implements Job.
func (j *OverdueScan) Name() string { return NameOverdueScan }

// Run implements Job.
func (j *OverdueScan) Run(ctx context.Context) (Result, error) {
	p := newPass(NameOverdueScan, j.deps.Log)

	today := startOfDay(j.deps.Now(), j.deps.Location)
	records, err := j.deps.Store.ListTrackedObjects(ctx, store.TrackedFilter{
		Kind:               model.KindQualityRecord,
		ExcludeStatuses:    model.TerminalRecordStatuses,
		DueBefore:          &today,
		RequireResponsible: true,
	})
	if err != nil {
		p.abort(fmt.Errorf("listing overdue quality records: %w", err))
		return p.finish()
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			p.abort(err)
			break
		}
		p.res.Visited++
		j.escalate(ctx, p, rec)
	}

	return p.finish()
}

// escalate runs find, decide, resolve, send and persist for one record
// while holding the record's lock. The store is only written after a
// successful send.
func (j *OverdueScan) escalate(ctx context.Context, p *pass, rec model.TrackedObject) {
	unlock := j.deps.Locks.Lock(rec.ID)
	defer unlock()

	existing, err := j.deps.Store.FindNotification(ctx, rec.ID, model.NotificationOverdue)
	if errors.Is(err, store.ErrNotFound) {
		existing = nil
	} else if err != nil {
		p.fail(PersistenceFailure, rec.ID, fmt.Errorf("finding notification: %w", err))
		return
	}

	now := j.deps.Now()
	action := escalation.Decide(existing, now, j.deps.Cooldown)
	metrics.Decision(action.String())

	log := p.log.WithFields(logrus.Fields{"object_id": rec.ID, "action": action.String()})
	if action == escalation.ActionWait || action == escalation.ActionStop {
		log.Debug("No email due")
		return
	}

	user, err := j.deps.Directory.Resolve(ctx, rec.ResponsibleID)
	if err != nil {
		p.fail(resolveKind(err), rec.ID, err)
		return
	}

	msg := mailer.OverdueRecord(user.Email, rec, j.deps.Location)
	if err := send(ctx, j.deps.Mailer, NameOverdueScan, msg); err != nil {
		p.fail(DispatchFailure, rec.ID, err)
		return
	}
	p.sent()

	switch action {
	case escalation.ActionCreate:
		targetID := rec.ID
		_, err = j.deps.Store.CreateNotification(ctx, model.Notification{
			UserID:          user.ID,
			TargetObjectID:  &targetID,
			Type:            model.NotificationOverdue,
			Message:         mailer.OverdueNotice(rec, j.deps.Location),
			CreatedAt:       now,
			LastEmailSentAt: &now,
		})
		if errors.Is(err, store.ErrDuplicate) {
			// Another process created the key between our find and insert;
			// its row already carries the escalation from here on.
			log.Warn("Notification created concurrently")
			return
		}
	case escalation.ActionResend:
		err = j.deps.Store.MarkEmailSent(ctx, existing.ID, now)
	}
	if err != nil {
		p.fail(PersistenceFailure, rec.ID, fmt.Errorf("recording sent email: %w", err))
		return
	}
	log.WithField("to", user.Email).Info("Escalation email sent")
}
