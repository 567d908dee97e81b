// Package jobs implements the periodic scans that escalate overdue quality
// records and mandatory forms, the unread digest, and operator reminders.
//
// Every job keeps its coordination state in the store. A pass can be
// interrupted at any point and the next pass re-derives what to do from the
// persisted notifications and statuses.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/escalation"
	"github.com/nhle/quality-escalation/internal/mailer"
	"github.com/nhle/quality-escalation/internal/metrics"
	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/store"
)

// Job names, used for scheduler lanes, metrics and the manual trigger.
const (
	NameOverdueScan  = "overdue-scan"
	NameFormScan     = "form-scan"
	NameDeadlineScan = "deadline-scan"
	NameDigest       = "digest"
)

// DefaultDeadlineWindow is how far ahead the deadline scan looks.
const DefaultDeadlineWindow = 24 * time.Hour

// Resolver resolves a responsible-party id or email to a user with an
// email address.
type Resolver interface {
	Resolve(ctx context.Context, idOrEmail string) (*model.User, error)
}

// Deps are the collaborators shared by every job.
type Deps struct {
	Store     store.Store
	Directory Resolver
	Mailer    mailer.Mailer
	Log       *logrus.Entry

	// Now defaults to time.Now.
	Now func() time.Time

	// Cooldown defaults to escalation.DefaultCooldown.
	Cooldown time.Duration

	// DeadlineWindow defaults to DefaultDeadlineWindow.
	DeadlineWindow time.Duration

	// Location is used to compute "today". Defaults to time.Local.
	Location *time.Location

	// Locks serialises work on one object id within the process. Jobs
	// sharing a Deps share the locks.
	Locks *KeyedMutex
}

// withDefaults fills unset fields.
func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Cooldown <= 0 {
		d.Cooldown = escalation.DefaultCooldown
	}
	if d.DeadlineWindow <= 0 {
		d.DeadlineWindow = DefaultDeadlineWindow
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Locks == nil {
		d.Locks = NewKeyedMutex()
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return d
}

// Result summarises one pass.
type Result struct {
	// Visited counts eligible objects (or users, for the digest).
	Visited int `json:"visited"`
	// Sent counts emails accepted by the mailer.
	Sent int `json:"sent"`
	// Skipped counts items dropped for a LookupFailure.
	Skipped int `json:"skipped"`
	// Failed counts items that hit a dispatch or persistence failure.
	Failed int `json:"failed"`
}

// Job is one schedulable pass.
type Job interface {
	Name() string

	// Run performs one pass. The error joins every dispatch and
	// persistence failure of the pass; lookup failures only count as
	// skips. A pass never stops early because of one item.
	Run(ctx context.Context) (Result, error)
}

// All builds the four scheduled jobs over shared deps.
func All(deps Deps) []Job {
	deps = deps.withDefaults()
	return []Job{
		NewOverdueScan(deps),
		NewFormScan(deps),
		NewDeadlineScan(deps),
		NewDigest(deps),
	}
}

// pass collects per-item outcomes of a single run.
type pass struct {
	job  string
	log  *logrus.Entry
	res  Result
	errs []error
}

func newPass(job string, log *logrus.Entry) *pass {
	return &pass{job: job, log: log}
}

func (p *pass) sent() {
	p.res.Sent++
}

// fail records an item failure and logs it at the level its kind calls for.
func (p *pass) fail(kind FailureKind, objectID string, err error) {
	ie := &ItemError{Kind: kind, Job: p.job, ObjectID: objectID, Err: err}
	entry := p.log.WithFields(logrus.Fields{"object_id": objectID, "failure": kind.String()})

	if kind == LookupFailure {
		p.res.Skipped++
		entry.WithError(err).Warn("Skipping item")
		return
	}
	p.res.Failed++
	p.errs = append(p.errs, ie)
	entry.WithError(err).Error("Item failed")
}

// abort records a failure that ends the pass, such as a failed listing.
func (p *pass) abort(err error) {
	p.errs = append(p.errs, &ItemError{Kind: PersistenceFailure, Job: p.job, Err: err})
	p.log.WithError(err).Error("Pass aborted")
}

func (p *pass) finish() (Result, error) {
	fields := logrus.Fields{
		"visited": p.res.Visited,
		"sent":    p.res.Sent,
		"skipped": p.res.Skipped,
		"failed":  p.res.Failed,
	}
	switch {
	case p.res.Visited == 0 && len(p.errs) == 0:
		p.log.Debug("Nothing to do")
	case p.res.Sent > 0 || p.res.Skipped > 0 || p.res.Failed > 0:
		p.log.WithFields(fields).Info("Pass complete")
	default:
		p.log.WithFields(fields).Debug("Pass complete")
	}
	return p.res, errors.Join(p.errs...)
}

// send dispatches msg and counts the attempt.
func send(ctx context.Context, m mailer.Mailer, job string, msg mailer.Message) error {
	err := m.Send(ctx, msg)
	metrics.Email(job, err)
	return err
}

// startOfDay returns local midnight of t in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
