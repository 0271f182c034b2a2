package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllTasksExecute(t *testing.T) {
	p := New(4)

	var count int64
	tasks := make([]func(context.Context) error, 100)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		}
	}

	require.NoError(t, p.Run(context.Background(), tasks))
	assert.Equal(t, int64(100), count)
}

func TestRun_FirstErrorWins(t *testing.T) {
	p := New(2)

	boom := errors.New("boom")
	tasks := []func(context.Context) error{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return boom },
		func(ctx context.Context) error { return nil },
	}

	err := p.Run(context.Background(), tasks)
	assert.ErrorIs(t, err, boom)
}

func TestManager_GetOrInit_SingleInitialization(t *testing.T) {
	var m Manager

	p1 := m.GetOrInit(4)
	p2 := m.GetOrInit(8) // ignored: pool already initialized

	assert.Same(t, p1, p2)
	assert.Equal(t, 4, p1.Workers())
}

func TestNew_ClampsNonPositiveWorkers(t *testing.T) {
	assert.Equal(t, 1, New(0).Workers())
	assert.Equal(t, 1, New(-5).Workers())
}
