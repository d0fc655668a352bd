package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUDPLoopback(t *testing.T) {
	sub, err := NewUDPSubscriber("127.0.0.1", 0, 500*time.Millisecond)
	require.NoError(t, err)
	defer sub.Close()

	port := sub.(*udpSubscriber).conn.LocalAddr().(*net.UDPAddr).Port
	pub, err := NewUDPPublisher("127.0.0.1", port)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish([]byte{1, 2, 3}))

	payload, err := sub.Receive()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, payload)
}

func TestSubscriberTimeout(t *testing.T) {
	sub, err := NewUDPSubscriber("127.0.0.1", 0, 20*time.Millisecond)
	require.NoError(t, err)
	defer sub.Close()

	_, err = sub.Receive()
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSubscriberClosed(t *testing.T) {
	sub, err := NewUDPSubscriber("127.0.0.1", 0, time.Second)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	_, err = sub.Receive()
	require.ErrorIs(t, err, ErrClosed)
}

func TestWaitContextHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	WaitContext(ctx, time.Second)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
