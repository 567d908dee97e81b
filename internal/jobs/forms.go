package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/mailer"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
)

// FormScan flags mandatory forms past their due date as OVERDUE and mails
// the responsible user once. The status flip is the only idempotency
// state: flagged forms drop out of the next pass's filter.
type FormScan struct {
	deps Deps
}

// NewFormScan creates the mandatory-form overdue scan.
func NewFormScan(deps Deps) *FormScan {
	return &FormScan{deps: deps.withDefaults()}
}

// Name implements Job.
func (j *FormScan) Name() string { return NameFormScan }

// Run implements Job.
func (j *FormScan) Run(ctx context.Context) (Result, error) {
	p := newPass(NameFormScan, j.deps.Log)

	now := j.deps.Now()
	forms, err := j.deps.Store.ListTrackedObjects(ctx, store.TrackedFilter{
		Kind:            model.KindMandatoryForm,
		ExcludeStatuses: []string{model.FormStatusSubmitted, model.FormStatusOverdue},
		DueBefore:       &now,
	})
	if err != nil {
		p.abort(fmt.Errorf("listing overdue forms: %w", err))
		return p.finish()
	}

	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			p.abort(err)
			break
		}
		p.res.Visited++
		j.flag(ctx, p, form)
	}

	return p.finish()
}

func (j *FormScan) flag(ctx context.Context, p *pass, form model.TrackedObject) {
	unlock := j.deps.Locks.Lock(form.ID)
	defer unlock()

	log := p.log.WithField("object_id", form.ID)

	// Only the run that wins the flip sends the email.
	err := j.deps.Store.UpdateTrackedStatus(ctx, form.ID, form.Status, model.FormStatusOverdue)
	if errors.Is(err, store.ErrStatusChanged) {
		log.Debug("Form status changed since listing")
		return
	}
	if err != nil {
		p.fail(PersistenceFailure, form.ID, fmt.Errorf("flagging form overdue: %w", err))
		return
	}

	// A form without a reachable owner stays flagged; there is nobody to
	// retry for.
	user, err := j.deps.Directory.Resolve(ctx, form.ResponsibleID)
	if err != nil {
		p.fail(resolveKind(err), form.ID, err)
		return
	}

	msg := mailer.FormOverdue(user.Email, form, j.deps.Location)
	if err := send(ctx, j.deps.Mailer, NameFormScan, msg); err != nil {
		p.fail(DispatchFailure, form.ID, err)
		j.unflag(ctx, log, form)
		return
	}
	p.sent()
	log.WithFields(logrus.Fields{"to": user.Email, "previous_status": form.Status}).Info("Form flagged overdue")
}

// unflag restores the previous status after a failed send so the next pass
// selects the form again.
func (j *FormScan) unflag(ctx context.Context, log *logrus.Entry, form model.TrackedObject) {
	err := j.deps.Store.UpdateTrackedStatus(ctx, form.ID, model.FormStatusOverdue, form.Status)
	if err != nil && !errors.Is(err, store.ErrStatusChanged) {
		log.WithError(err).Error("Restoring form status after failed send")
	}
}
