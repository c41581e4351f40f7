package ws

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpollConfig_Defaults(t *testing.T) {
	assert.Equal(t, DefaultEpollConfig(), EpollConfig{}.withDefaults())

	custom := EpollConfig{WaitTimeout: time.Second, EventBuffer: 4}
	assert.Equal(t, custom, custom.withDefaults())
}

func tcpPair(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, err = ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestEpoll_WaitUsesConfiguredTimeout(t *testing.T) {
	ep, err := NewEpoll(EpollConfig{WaitTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer ep.Close()
	assert.Equal(t, 20*time.Millisecond, ep.WaitTimeout())

	client, server := tcpPair(t)
	require.NoError(t, ep.Add(server))

	start := time.Now()
	ready, err := ep.Wait()
	require.NoError(t, err)
	assert.Empty(t, ready, "idle connection is not ready")
	assert.Less(t, time.Since(start), time.Second, "wait returns after its timeout")

	_, err = client.Write([]byte{0x81})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		ready, err := ep.Wait()
		return err == nil && len(ready) == 1 && ready[0] == server
	}, time.Second, time.Millisecond)

	assert.NoError(t, ep.Remove(server))
}
