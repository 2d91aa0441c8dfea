package inproc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pradok/events-scheduler-sub000/queue/inproc"
)

func TestQueue_PublishSubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := inproc.New(4)

	msgs, cancel, err := q.Subscribe(ctx, "topic-a", "group-1")
	require.NoError(t, err)
	defer cancel()

	_, err = q.Publish(ctx, "topic-a", []byte("hello"))
	require.NoError(t, err)

	select {
	case m := <-msgs:
		require.Equal(t, []byte("hello"), m.Payload)
		require.NoError(t, m.Ack(ctx))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_SubscribersOnDifferentTopicsDoNotCrossTalk(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := inproc.New(4)

	msgsA, cancelA, err := q.Subscribe(ctx, "topic-a", "g")
	require.NoError(t, err)
	defer cancelA()
	msgsB, cancelB, err := q.Subscribe(ctx, "topic-b", "g")
	require.NoError(t, err)
	defer cancelB()

	_, err = q.Publish(ctx, "topic-a", []byte("for-a"))
	require.NoError(t, err)

	select {
	case m := <-msgsA:
		require.Equal(t, []byte("for-a"), m.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for topic-a message")
	}

	select {
	case <-msgsB:
		t.Fatal("topic-b subscriber should not see topic-a messages")
	case <-time.After(50 * time.Millisecond):
	}
}
