package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/quality-escalation/internal/model"
	"github.com/nhle/quality-escalation/internal/testutil"
)

func (f *fixture) form(t *testing.T, id, status string, due time.Time, responsible string) {
	t.Helper()
	f.addObject(t, model.TrackedObject{
		ID:            id,
		Kind:          model.KindMandatoryForm,
		DueDate:       &due,
		Status:        status,
		ResponsibleID: responsible,
	})
}

func (f *fixture) status(t *testing.T, id string) string {
	t.Helper()
	obj, err := f.store.GetTrackedObject(context.Background(), id)
	require.NoError(t, err)
	return obj.Status
}

func TestFormScanFlagsOnceAndMailsOnce(t *testing.T) {
	f := newFixture(t)
	f.form(t, "form-1", model.FormStatusPending, f.clock.Now().AddDate(0, 0, -1), "alice")
	job := NewFormScan(f.deps)
	ctx := context.Background()

	// E: first run flips the status and sends one email.
	res, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Visited: 1, Sent: 1}, res)
	assert.Equal(t, model.FormStatusOverdue, f.status(t, "form-1"))
	require.Len(t, f.mail.SentTo(aliceEmail), 1)

	// A second run right after no longer selects the form.
	res, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	f.clock.Advance(time.Hour)
	_, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, f.mail.Sent(), 1)
}

func TestFormScanIgnoresSubmittedAndFutureForms(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.form(t, "submitted", model.FormStatusSubmitted, now.AddDate(0, 0, -2), "alice")
	f.form(t, "future", model.FormStatusPending, now.Add(time.Hour), "alice")

	res, err := NewFormScan(f.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, model.FormStatusSubmitted, f.status(t, "submitted"))
	assert.Equal(t, model.FormStatusPending, f.status(t, "future"))
}

func TestFormScanDispatchFailureRetriesNextRun(t *testing.T) {
	f := newFixture(t)
	f.form(t, "form-1", model.FormStatusPending, f.clock.Now().Add(-time.Minute), "alice")
	job := NewFormScan(f.deps)
	ctx := context.Background()

	f.mail.FailAll(testutil.ErrMailDown)
	res, err := job.Run(ctx)
	require.Error(t, err)
	assert.True(t, IsDispatchFailure(err))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, model.FormStatusPending, f.status(t, "form-1"))

	f.mail.FailAll(nil)
	res, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, model.FormStatusOverdue, f.status(t, "form-1"))
}

func TestFormScanFlagsFormWithoutReachableOwner(t *testing.T) {
	f := newFixture(t)
	f.form(t, "form-1", model.FormStatusPending, f.clock.Now().AddDate(0, 0, -1), "nomail")

	res, err := NewFormScan(f.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Visited: 1, Skipped: 1}, res)
	assert.Equal(t, model.FormStatusOverdue, f.status(t, "form-1"))
	assert.Empty(t, f.mail.Sent())
}
