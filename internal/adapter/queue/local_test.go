package queue

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalQueue_DeliversInOrder(t *testing.T) {
	q := NewLocalQueue(16, zap.NewNop())

	var mu sync.Mutex
	var got []string
	require.NoError(t, q.Subscribe("evrental.events", func(data []byte) error {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
		return nil
	}))
	require.NoError(t, q.Subscribe("evrental.events", func([]byte) error {
		return errors.New("second handler failing does not stop delivery")
	}))

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish("evrental.events", []byte(m)))
	}
	require.NoError(t, q.Publish("other", []byte("ignored")))
	require.NoError(t, q.Close())

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLocalQueue_FullAndClosed(t *testing.T) {
	q := NewLocalQueue(1, zap.NewNop())
	block := make(chan struct{})
	require.NoError(t, q.Subscribe("s", func([]byte) error {
		<-block
		return nil
	}))

	require.NoError(t, q.Publish("s", []byte("1")))
	assert.Eventually(t, func() bool { return len(q.messages) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Publish("s", []byte("2")))
	assert.ErrorIs(t, q.Publish("s", []byte("3")), ErrQueueFull)

	assert.NoError(t, q.Ping())
	close(block)
	require.NoError(t, q.Close())
	assert.Error(t, q.Publish("s", []byte("4")))
	assert.Error(t, q.Ping())
	assert.NoError(t, q.Close())
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New("carrier-pigeon", "", zap.NewNop())
	assert.Error(t, err)

	q, err := New(DriverLocal, "", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, q.Close())
}
