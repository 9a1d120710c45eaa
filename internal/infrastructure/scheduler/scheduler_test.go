package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/gocredit/internal/domain"
)

func TestAddSkipsJobsWithoutInterval(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	s.Add(Job{Name: "off", Run: func(context.Context) (int, error) { return 0, nil }})
	s.Add(Job{Name: "on", Interval: time.Second, Run: func(context.Context) (int, error) { return 0, nil }})

	assert.Equal(t, []string{"on"}, s.Jobs())
}

func TestStartRunsJobsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	s := New(zerolog.Nop(), nil)
	s.Add(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int, error) {
			runs.Add(1)
			return 1, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestStartKeepsRunningAfterFailure(t *testing.T) {
	var runs atomic.Int32
	s := New(zerolog.Nop(), nil)
	s.Add(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) (int, error) {
			if runs.Add(1) == 1 {
				return 0, errors.New("ledger unavailable")
			}
			return 0, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestStartWithoutJobsBlocksUntilCancelled(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeProcessor struct {
	now       time.Time
	batchSize int
	subject   string
	result    int
}

func (f *fakeProcessor) ProcessMaturity(ctx context.Context, now time.Time) (int, error) {
	f.now = now
	f.subject = domain.UserFromContext(ctx).ID
	return f.result, nil
}

func (f *fakeProcessor) ProcessTransitions(ctx context.Context, now time.Time) (int, error) {
	f.now = now
	f.subject = domain.UserFromContext(ctx).ID
	return f.result, nil
}

func (f *fakeProcessor) RefreshCollateralization(ctx context.Context) (int, error) {
	f.subject = domain.UserFromContext(ctx).ID
	return f.result, nil
}

func (f *fakeProcessor) Project(ctx context.Context, batchSize int) (int, error) {
	f.batchSize = batchSize
	f.subject = domain.UserFromContext(ctx).ID
	return f.result, nil
}

func TestJobsRunAsSystemUser(t *testing.T) {
	ctx := domain.ContextWithUser(context.Background(), &domain.User{ID: "u-1", Role: domain.RoleViewer})

	tests := []struct {
		name string
		job  func(p *fakeProcessor) Job
	}{
		{"maturity", func(p *fakeProcessor) Job { return MaturityJob(p, time.Minute) }},
		{"obligation", func(p *fakeProcessor) Job { return ObligationJob(p, time.Minute) }},
		{"collateral", func(p *fakeProcessor) Job { return CollateralJob(p, time.Minute) }},
		{"history", func(p *fakeProcessor) Job { return HistoryJob(p, time.Minute, 50) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProcessor{result: 4}
			job := tt.job(p)

			n, err := job.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, n)
			assert.Equal(t, domain.SystemSubject, p.subject)
		})
	}
}

func TestTimedJobsPassCurrentTime(t *testing.T) {
	p := &fakeProcessor{}
	before := time.Now().UTC()

	_, err := MaturityJob(p, time.Minute).Run(context.Background())
	require.NoError(t, err)

	assert.False(t, p.now.Before(before))
	assert.Equal(t, time.UTC, p.now.Location())
}

func TestHistoryJobPassesBatchSize(t *testing.T) {
	p := &fakeProcessor{}

	_, err := HistoryJob(p, time.Minute, 25).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, p.batchSize)
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	called := false

	s.RunOnce(context.Background(), Job{
		Name: "broken",
		Run: func(context.Context) (int, error) {
			called = true
			return 0, errors.New("boom")
		},
	})

	assert.True(t, called)
}
