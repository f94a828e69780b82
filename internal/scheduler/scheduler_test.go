package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	s := New(context.Background(), nil)

	require.NoError(t, s.Register("analyze", "0 */5 * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Register("report", "", func(context.Context) error { return nil }))

	assert.Error(t, s.Register("analyze", "", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("flush", "not a spec", func(context.Context) error { return nil }))

	assert.Equal(t, [][2]string{{"analyze", "0 */5 * * * *"}, {"report", ""}}, s.Jobs())
}

func TestRunNow(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "lab")
	s := New(ctx, nil)

	var got any
	require.NoError(t, s.Register("flush", "", func(ctx context.Context) error {
		got = ctx.Value(ctxKey{})
		return nil
	}))
	boom := errors.New("boom")
	require.NoError(t, s.Register("broken", "", func(context.Context) error { return boom }))

	require.NoError(t, s.RunNow("flush"))
	assert.Equal(t, "lab", got)

	assert.ErrorIs(t, s.RunNow("broken"), boom)
	assert.ErrorIs(t, s.RunNow("missing"), ErrUnknownJob)
}

func TestRun_SkipsOverlap(t *testing.T) {
	s := New(context.Background(), nil)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, s.Register("slow", "", func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.RunNow("slow") }()
	<-started

	// second run returns immediately without calling the job
	require.NoError(t, s.RunNow("slow"))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartStop_FiresOnSchedule(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the cron tick")
	}

	s := New(context.Background(), nil)
	var calls atomic.Int32
	require.NoError(t, s.Register("tick", "* * * * * *", func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	s.Start()
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
