package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_RunsInOrder(t *testing.T) {
	q := newTaskQueue()
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Push(func() { got = append(got, i) })
	}
	require.NoError(t, q.Do(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTaskQueue_PushFromTask(t *testing.T) {
	q := newTaskQueue()

	var got []string
	q.Push(func() {
		got = append(got, "outer")
		q.Push(func() { got = append(got, "inner") })
	})
	q.Push(func() { got = append(got, "next") })
	q.Close()

	assert.Equal(t, []string{"outer", "next", "inner"}, got)
}

func TestTaskQueue_CloseDrains(t *testing.T) {
	q := newTaskQueue()

	ran := 0
	block := make(chan struct{})
	q.Push(func() { <-block })
	for i := 0; i < 5; i++ {
		q.Push(func() { ran++ })
	}
	close(block)
	q.Close()

	assert.Equal(t, 5, ran)
	assert.Equal(t, 0, q.Len())
}

func TestTaskQueue_AfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()

	q.Push(func() { t.Error("task ran after close") })
	assert.ErrorIs(t, q.Do(context.Background(), func() {}), ErrStopped)
}

func TestTaskQueue_DoHonorsContext(t *testing.T) {
	q := newTaskQueue()
	block := make(chan struct{})
	q.Push(func() { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Do(ctx, func() {}), context.DeadlineExceeded)

	close(block)
	q.Close()
}
