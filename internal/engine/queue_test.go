package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Queue_SendGet_FIFO(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, Message{Payload: 1}))
	require.NoError(t, q.Send(ctx, Message{Payload: 2}))

	v, err := q.Get(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = q.Get(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func Test_Queue_Get_SkipsNonMatching(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, Message{Payload: "wrong"}))
	require.NoError(t, q.Send(ctx, Message{Payload: "right"}))

	v, err := q.Get(ctx, nil, func(p interface{}) bool { return p == "right" })
	require.NoError(t, err)
	require.Equal(t, "right", v)

	// the skipped message is still queued
	require.Equal(t, 1, q.Len())
}

func Test_Queue_Get_PrunesByIndexKey(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, Message{Payload: "foo(1)", IndexKey: "foo/1"}))
	require.NoError(t, q.Send(ctx, Message{Payload: "bar(1)", IndexKey: "bar/1"}))

	called := 0
	v, err := q.Get(ctx, "bar/1", func(p interface{}) bool {
		called++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, "bar(1)", v)
	require.Equal(t, 1, called, "index-key pruning must skip the foo/1 message without invoking match")
}

func Test_Queue_Send_BlocksAtCapacity(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, Message{Payload: 1}))

	done := make(chan error, 1)
	go func() { done <- q.Send(ctx, Message{Payload: 2}) }()

	select {
	case <-done:
		t.Fatal("Send should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := q.Get(ctx, nil, nil)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send never unblocked after room freed")
	}
}

func Test_Queue_Get_RespectsContextCancellation(t *testing.T) {
	q := NewQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Get(ctx, nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func Test_Queue_Close_WakesWaiters(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx, nil, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close never woke the blocked Get")
	}
}
