package jobs

import (
	"context"
	"fmt"

	"github.com/nhle/quality-escalation/internal/mailer"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
)

// DeadlineScan warns owners of pending mandatory forms due within the
// window. It keeps no state: every pass mails every matching form again.
type DeadlineScan struct {
	deps Deps
}

// NewDeadlineScan creates the upcoming-deadline scan.
func NewDeadlineScan(deps Deps) *DeadlineScan {
	return &DeadlineScan{deps: deps.withDefaults()}
}

// Name implements Job.
func (j *DeadlineScan) Name() string { return NameDeadlineScan }

// Run implements Job.
func (j *DeadlineScan) Run(ctx context.Context) (Result, error) {
	p := newPass(NameDeadlineScan, j.deps.Log)

	now := j.deps.Now()
	until := now.Add(j.deps.DeadlineWindow)
	forms, err := j.deps.Store.ListTrackedObjects(ctx, store.TrackedFilter{
		Kind:     model.KindMandatoryForm,
		Statuses: []string{model.FormStatusPending},
		DueFrom:  &now,
		DueTo:    &until,
	})
	if err != nil {
		p.abort(fmt.Errorf("listing forms due soon: %w", err))
		return p.finish()
	}

	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			p.abort(err)
			break
		}
		p.res.Visited++

		user, err := j.deps.Directory.Resolve(ctx, form.ResponsibleID)
		if err != nil {
			p.fail(resolveKind(err), form.ID, err)
			continue
		}
		if err := send(ctx, j.deps.Mailer, NameDeadlineScan, mailer.DeadlineSoon(user.Email, form, j.deps.Location)); err != nil {
			p.fail(DispatchFailure, form.ID, err)
			continue
		}
		p.sent()
	}

	return p.finish()
}
