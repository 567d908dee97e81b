package jobs

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/quality-escalation/internal/mailer"
	"github.com/nhle/quality-escalation/internal/store"
)

// Digest mails each user one message listing all their unread
// notifications and marks exactly that batch read once the send succeeds.
type Digest struct {
	deps Deps
}

// NewDigest creates the unread digest job.
func NewDigest(deps Deps) *Digest {
	return &Digest{deps: deps.withDefaults()}
}

// Name implements Job.
func (j *Digest) Name() string { return NameDigest }

// Run implements Job.
func (j *Digest) Run(ctx context.Context) (Result, error) {
	p := newPass(NameDigest, j.deps.Log)

	unread, err := j.deps.Store.ListNotifications(ctx, store.NotificationFilter{UnreadOnly: true})
	if err != nil {
		p.abort(fmt.Errorf("listing unread notifications: %w", err))
		return p.finish()
	}

	var users []string
	seen := make(map[string]bool)
	for _, n := range unread {
		if !seen[n.UserID] {
			seen[n.UserID] = true
			users = append(users, n.UserID)
		}
	}

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			p.abort(err)
			break
		}
		p.res.Visited++
		j.deliver(ctx, p, userID)
	}

	return p.finish()
}

// deliver handles one user's batch. Either every notification in the
// mailed batch becomes read or none does.
func (j *Digest) deliver(ctx context.Context, p *pass, userID string) {
	unlock := j.deps.Locks.Lock("digest:" + userID)
	defer unlock()

	batch, err := j.deps.Store.ListUnreadByUser(ctx, userID)
	if err != nil {
		p.fail(PersistenceFailure, userID, fmt.Errorf("listing unread notifications: %w", err))
		return
	}
	if len(batch) == 0 {
		return
	}

	user, err := j.deps.Directory.Resolve(ctx, userID)
	if err != nil {
		p.fail(resolveKind(err), userID, err)
		return
	}

	if err := send(ctx, j.deps.Mailer, NameDigest, mailer.Digest(user.Email, batch)); err != nil {
		p.fail(DispatchFailure, userID, err)
		return
	}
	p.sent()

	ids := make([]string, len(batch))
	for i, n := range batch {
		ids[i] = n.ID
	}
	if err := j.deps.Store.MarkNotificationsRead(ctx, ids); err != nil {
		p.fail(PersistenceFailure, userID, fmt.Errorf("marking digest batch read: %w", err))
		return
	}
	p.log.WithFields(logrus.Fields{"user_id": userID, "count": len(ids)}).Info("Digest sent")
}
