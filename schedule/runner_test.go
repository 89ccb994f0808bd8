package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_TicksTask(t *testing.T) {
	var runs atomic.Int64
	r := NewRunner(Task{
		Name:  "count",
		Every: 5 * time.Millisecond,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			runs.Add(1)
			return 0, nil
		},
	})

	r.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	r.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestRunner_RunAll(t *testing.T) {
	var mu sync.Mutex
	var lines []string

	r := NewRunner(
		Task{
			Name:  "sweeps",
			Every: time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return 7, nil
			},
		},
		Task{
			Name:  "broken",
			Every: time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return 0, errors.New("backend down")
			},
		},
		Task{
			Name:  "quiet",
			Every: time.Hour,
			Run: func(ctx context.Context, now time.Time) (int, error) {
				return 0, nil
			},
		},
	)
	r.Logf = func(format string, args ...any) {
		mu.Lock()
		lines = append(lines, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	r.RunAll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 2)
	assert.Equal(t, "task sweeps removed 7 records", lines[0])
	assert.Equal(t, "task broken failed: backend down", lines[1])
}

func TestRunner_SkipsMalformedTasks(t *testing.T) {
	r := NewRunner(
		Task{Name: "no-run", Every: time.Second},
		Task{Name: "no-interval", Run: func(context.Context, time.Time) (int, error) { return 0, nil }},
	)
	assert.Empty(t, r.tasks)

	// Start/Stop on an empty runner must not block.
	r.Start(context.Background())
	r.Stop()
}

func TestRunner_InjectedClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var seen time.Time
	r := NewRunner(Task{
		Name:  "clock",
		Every: time.Hour,
		Run: func(ctx context.Context, now time.Time) (int, error) {
			seen = now
			return 0, nil
		},
	})
	r.Now = func() time.Time { return fixed }

	r.RunAll(context.Background())
	assert.True(t, seen.Equal(fixed))
}
