package scheduler

import (
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/100-hours-a-week/7-team-kono-fe/internal/database"
)

func TestScheduler_AddJobRejectsInvalidSpec(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a schedule", JobFunc{JobName: "noop", Fn: func() error { return nil }})
	assert.Error(t, err)
}

func TestScheduler_RunsJobsOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	var runs atomic.Int32
	require.NoError(t, s.AddJob("@every 1s", JobFunc{JobName: "counter", Fn: func() error {
		runs.Add(1)
		return errors.New("failures are logged, not fatal")
	}}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	sentinel := errors.New("boom")

	err := s.RunNow(JobFunc{JobName: "fail", Fn: func() error { return sentinel }})

	assert.ErrorIs(t, err, sentinel)
}

func TestExclusive_RejectsOverlappingRuns(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	job := Exclusive(JobFunc{JobName: "holdings_refresh", Fn: func() error {
		runs.Add(1)
		close(entered)
		<-release
		return nil
	}})
	assert.Same(t, job, Exclusive(job))
	assert.Nil(t, Exclusive(nil))
	assert.Equal(t, "holdings_refresh", job.Name())

	firstErr := make(chan error, 1)
	go func() { firstErr <- job.Run() }()
	<-entered

	err := New(zerolog.Nop()).RunNow(job)
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.Contains(t, err.Error(), "holdings_refresh")

	close(release)
	require.NoError(t, <-firstErr)
	assert.Equal(t, int32(1), runs.Load())
}

func TestCheckWALCheckpointsJob(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "client_data.db"),
		Name: database.NameClientData,
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	job := NewCheckWALCheckpointsJob(zerolog.Nop(), db, nil)

	assert.Equal(t, "check_wal_checkpoints", job.Name())
	assert.NoError(t, job.Run())
}
