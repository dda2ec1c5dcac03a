package quest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRunsInBackground(t *testing.T) {
	m := NewMaster()
	started := make(chan struct{})
	release := make(chan struct{})

	questID, q, err := Schedule(m, "work", "", func(inner *Quest) (int, error) {
		close(started)
		<-release
		return 9, nil
	})
	require.NoError(t, err)
	assert.NotZero(t, questID)

	<-started
	assert.Equal(t, Ongoing, q.State())
	close(release)

	assert.Eventually(t, func() bool { return q.State() == Success }, time.Second, time.Millisecond)
}

func TestScheduleExclusiveKeyRejectsSecondInFlight(t *testing.T) {
	m := NewMaster()
	release := make(chan struct{})

	_, _, err := Schedule(m, "first", "instance-1", func(inner *Quest) (int, error) {
		<-release
		return 0, nil
	})
	require.NoError(t, err)

	_, _, err = Schedule(m, "second", "instance-1", func(inner *Quest) (int, error) {
		return 0, nil
	})
	assert.Error(t, err)
	assert.Equal(t, flecserr.KindConflict, flecserr.KindOf(err))

	close(release)
}

func TestScheduleExclusiveKeyFreedAfterCompletion(t *testing.T) {
	m := NewMaster()
	var wg sync.WaitGroup
	wg.Add(1)
	_, _, err := Schedule(m, "first", "instance-1", func(inner *Quest) (int, error) {
		defer wg.Done()
		return 0, nil
	})
	require.NoError(t, err)
	wg.Wait()

	assert.Eventually(t, func() bool {
		_, _, err := Schedule(m, "second", "instance-1", func(inner *Quest) (int, error) { return 0, nil })
		return err == nil
	}, time.Second, time.Millisecond)
}

func TestShutdownWithRefusesNewScheduleAndDrains(t *testing.T) {
	m := NewMaster()
	started := make(chan struct{})
	release := make(chan struct{})

	_, _, err := Schedule(m, "long-runner", "", func(inner *Quest) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	require.NoError(t, err)
	<-started

	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := ShutdownWith(m, "final", func(inner *Quest) (string, error) {
			return "bye", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "bye", v)
	}()

	_, _, err = Schedule(m, "rejected", "", func(inner *Quest) (int, error) { return 0, nil })
	assert.Error(t, err)

	close(release)
	<-done
}

func TestShutdownWithPropagatesFinalError(t *testing.T) {
	m := NewMaster()
	_, err := ShutdownWith(m, "final", func(inner *Quest) (int, error) {
		return 0, errors.New("final failed")
	})
	assert.Error(t, err)
}
