package jobs

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/quality-escalation/internal/directory"
)

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("obj")
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, k.size())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	assert.Equal(t, 2, k.size())
	unlockA()
	unlockB()
	assert.Zero(t, k.size())
}

func TestItemErrorClassification(t *testing.T) {
	lookup := &ItemError{Kind: LookupFailure, Job: NameOverdueScan, ObjectID: "r1", Err: directory.ErrNoEmail}
	dispatch := &ItemError{Kind: DispatchFailure, Job: NameDigest, Err: errors.New("smtp")}
	joined := errors.Join(dispatch, fmt.Errorf("wrapped: %w", lookup))

	assert.True(t, IsLookupFailure(lookup))
	assert.False(t, IsDispatchFailure(lookup))
	assert.True(t, IsDispatchFailure(joined))
	assert.True(t, IsLookupFailure(joined))
	assert.False(t, IsPersistenceFailure(joined))
	assert.ErrorIs(t, lookup, directory.ErrNoEmail)
	assert.Equal(t, "overdue-scan: lookup failure for r1: user has no email address", lookup.Error())
	assert.Equal(t, "digest: dispatch failure: smtp", dispatch.Error())

	assert.Equal(t, LookupFailure, resolveKind(fmt.Errorf("x: %w", directory.ErrUserNotFound)))
	assert.Equal(t, PersistenceFailure, resolveKind(errors.New("io")))
}
