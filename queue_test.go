package autopilot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxFIFO(t *testing.T) {
	ctx := context.Background()
	mailbox := NewMailbox("worker", 8)

	for i := 0; i < 5; i++ {
		require.NoError(t, mailbox.Put(ctx, QueueMessage{
			ID:      NewMessageID(),
			Payload: fmt.Sprintf("msg-%d", i),
		}))
	}
	assert.Equal(t, 5, mailbox.Len())

	for i := 0; i < 5; i++ {
		msg, err := mailbox.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Payload)
	}
}

func TestMailboxBackpressureBlocksSender(t *testing.T) {
	ctx := context.Background()
	mailbox := NewMailbox("worker", 1)
	require.NoError(t, mailbox.Put(ctx, QueueMessage{Payload: "first"}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- mailbox.Put(ctx, QueueMessage{Payload: "second"})
	}()

	select {
	case err := <-blocked:
		t.Fatalf("send should have blocked on a full mailbox, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	msg, err := mailbox.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Payload)

	select {
	case err := <-blocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sender did not unblock after a receive")
	}
}

func TestMailboxPutCancelled(t *testing.T) {
	mailbox := NewMailbox("worker", 1)
	require.NoError(t, mailbox.Put(context.Background(), QueueMessage{Payload: "fill"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := mailbox.Put(ctx, QueueMessage{Payload: "overflow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParticipantsProcessBacklogBeforeSentinel(t *testing.T) {
	ctx := context.Background()
	driver, worker := NewParticipantPair("driver", "worker", 8)

	// Queue three payloads and then the sentinel before the worker starts.
	for i := 0; i < 3; i++ {
		require.NoError(t, driver.Send(ctx, fmt.Sprintf("task-%d", i)))
	}
	require.NoError(t, driver.SendTerminal(ctx))

	var handled []string
	err := worker.Run(ctx, func(ctx context.Context, msg QueueMessage) (string, error) {
		handled = append(handled, msg.Payload)
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"task-0", "task-1", "task-2"}, handled)

	// Sentinel-for-sentinel: the worker mirrored the sentinel back.
	msg, err := driver.Inbox().Receive(ctx)
	require.NoError(t, err)
	assert.True(t, msg.Terminal)
	assert.Equal(t, "worker", msg.Sender)
}

func TestParticipantConversation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ping, pong := NewParticipantPair("ping", "pong", 4)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = pong.Run(ctx, func(ctx context.Context, msg QueueMessage) (string, error) {
			return "ack:" + msg.Payload, nil
		})
	}()

	require.NoError(t, ping.Send(ctx, "hello"))
	reply, err := ping.Inbox().Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ack:hello", reply.Payload)
	assert.Equal(t, "pong", reply.Sender)

	require.NoError(t, ping.SendTerminal(ctx))
	wg.Wait()

	// The mirrored sentinel is waiting for the initiating side.
	msg, err := ping.Inbox().Receive(ctx)
	require.NoError(t, err)
	assert.True(t, msg.Terminal)
}

func TestParticipantHandlerError(t *testing.T) {
	ctx := context.Background()
	driver, worker := NewParticipantPair("driver", "worker", 4)
	require.NoError(t, driver.Send(ctx, "bad task"))

	err := worker.Run(ctx, func(ctx context.Context, msg QueueMessage) (string, error) {
		return "", fmt.Errorf("cannot handle %q", msg.Payload)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad task")
}

func TestMessageIDPrefix(t *testing.T) {
	id := NewMessageID()
	assert.Regexp(t, `^msg_`, id)
	assert.NotEqual(t, id, NewMessageID())
}
