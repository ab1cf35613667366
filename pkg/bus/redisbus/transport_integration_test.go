//go:build integration

package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/freudmarin/TaskBoardApp/internal/testutil"
	"github.com/freudmarin/TaskBoardApp/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAgainstRealRedis(t *testing.T) {
	env := testutil.StartRedis(t)
	rdb := env.Client(t)
	ctx := context.Background()

	mgr := bus.NewManager(
		NewDialer(env.Options, WithHeartbeat(100*time.Millisecond), WithLogger(quietLogger())),
		bus.WithReconnectDelay(200*time.Millisecond),
		bus.WithLogger(quietLogger()),
	)
	t.Cleanup(func() { mgr.Close() })
	require.NoError(t, mgr.Connect(ctx, ""))

	events := make(chan bus.Event, 4)
	_, err := mgr.Subscribe(1, func(ev bus.Event) { events <- ev })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := rdb.Publish(ctx, BoardChannel(DefaultPrefix, 1), `{"type":"LIST_DELETED","data":{"listId":12}}`).Result()
		return err == nil && n > 0
	}, 5*time.Second, 50*time.Millisecond)

	select {
	case ev := <-events:
		deleted, ok := ev.(*bus.ListDeleted)
		require.True(t, ok)
		assert.Equal(t, int64(12), deleted.ListID)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	t.Run("broker outage is detected", func(t *testing.T) {
		env.Stop(t)
		require.Eventually(t, func() bool { return !mgr.IsConnected() }, 10*time.Second, 50*time.Millisecond)
	})
}
