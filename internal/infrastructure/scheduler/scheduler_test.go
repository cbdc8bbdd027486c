package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alem-hub/gamification/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) // a Sunday

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, name string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, name)
		l.released = append(l.released, name)
		return nil
	}, true, nil
}

func newTestScheduler(locker Locker) *Scheduler {
	return New(Config{Clock: timeutil.FixedClock(base), Locker: locker})
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		spec string
		from time.Time
		want time.Time
	}{
		{"5 0 * * *", base, time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)},
		{"10 0 * * 1", base, time.Date(2026, 3, 2, 0, 10, 0, 0, time.UTC)},
		{"@every 15m", base, base.Add(15 * time.Minute)},
		{"@daily", base, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			s, err := ParseSchedule(tt.spec, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(s.Next(tt.from)), "got %s", s.Next(tt.from))
			assert.Equal(t, tt.spec, s.String())
		})
	}

	for _, bad := range []string{"", "bogus", "61 * * * *"} {
		_, err := ParseSchedule(bad, time.UTC)
		assert.ErrorIs(t, err, ErrInvalidSchedule, bad)
	}
}

func TestEvery(t *testing.T) {
	s := Every(90 * time.Second)
	assert.Equal(t, base.Add(90*time.Second), s.Next(base))
	assert.Equal(t, "@every 1m30s", s.String())
}

func TestRegister(t *testing.T) {
	s := newTestScheduler(nil)
	job := &funcJob{name: "a", run: func(context.Context) error { return nil }}

	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&funcJob{name: "b"}, nil), ErrNilSchedule)

	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Minute), info.NextRun)
}

func TestDispatch_SkipsOverlappingActivation(t *testing.T) {
	s := newTestScheduler(nil)
	release := make(chan struct{})
	var runs atomic.Int32

	require.NoError(t, s.Register(&funcJob{name: "slow", run: func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}}, Every(time.Minute)))

	ctx := context.Background()
	s.dispatchDue(ctx, base.Add(30*time.Second))
	s.dispatchDue(ctx, base.Add(time.Minute))
	s.dispatchDue(ctx, base.Add(2*time.Minute))

	close(release)
	s.jobsWG.Wait()

	info, err := s.GetJobInfo("slow")
	require.NoError(t, err)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.SkipCount)
	assert.False(t, info.Running)
	assert.Equal(t, base.Add(3*time.Minute), info.NextRun)
}

func TestDispatch_RecordsFailure(t *testing.T) {
	s := newTestScheduler(nil)
	boom := errors.New("boom")
	require.NoError(t, s.Register(&funcJob{name: "bad", run: func(context.Context) error { return boom }}, Every(time.Minute)))

	s.dispatchDue(context.Background(), base.Add(time.Minute))
	s.jobsWG.Wait()

	info, _ := s.GetJobInfo("bad")
	assert.Equal(t, int64(1), info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.ErrorIs(t, info.LastResult.Error, boom)
}

func TestDispatch_LockHeldElsewhere(t *testing.T) {
	locker := &fakeLocker{held: map[string]bool{"locked": true}}
	s := newTestScheduler(locker)
	var runs atomic.Int32

	require.NoError(t, s.Register(&funcJob{name: "locked", run: func(context.Context) error { runs.Add(1); return nil }}, Every(time.Minute)))
	require.NoError(t, s.Register(&funcJob{name: "free", run: func(context.Context) error { runs.Add(1); return nil }}, Every(time.Minute)))

	s.dispatchDue(context.Background(), base.Add(time.Minute))
	s.jobsWG.Wait()

	assert.Equal(t, int32(1), runs.Load())
	locked, _ := s.GetJobInfo("locked")
	assert.Equal(t, int64(1), locked.SkipCount)
	assert.Equal(t, []string{"free"}, locker.released)
}

func TestRunNow(t *testing.T) {
	s := newTestScheduler(nil)
	require.NoError(t, s.Register(&funcJob{name: "panics", run: func(context.Context) error { panic("kaboom") }}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanic)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(1), jobs[0].FailCount)
}

func TestStartStop(t *testing.T) {
	s := New(Config{Tick: 5 * time.Millisecond})
	var runs atomic.Int32
	require.NoError(t, s.Register(&funcJob{name: "tick", run: func(context.Context) error { runs.Add(1); return nil }}, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
