package sockopt

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListen_ReuseAddr(t *testing.T) {
	ln, err := Listen(context.Background(), "tcp", "127.0.0.1:0", true)
	require.NoError(t, err)
	addr := ln.Addr().String()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	srv, err := ln.Accept()
	require.NoError(t, err)

	// 关闭监听后立即在同一端口重新监听
	require.NoError(t, srv.Close())
	require.NoError(t, conn.Close())
	require.NoError(t, ln.Close())

	ln2, err := Listen(context.Background(), "tcp", addr, true)
	require.NoError(t, err)
	assert.Equal(t, addr, ln2.Addr().String())
	require.NoError(t, ln2.Close())
}

func TestListen_Plain(t *testing.T) {
	ln, err := Listen(context.Background(), "tcp", "127.0.0.1:0", false)
	require.NoError(t, err)
	defer ln.Close()
	assert.NotEmpty(t, ln.Addr().String())
}
