package rpc

import (
	"context"
	"errors"
	"testing"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testPool(t *testing.T, urls ...string) *Pool {
	t.Helper()
	clients := make([]*NodeClient, len(urls))
	for i, u := range urls {
		clients[i] = newNodeClient(u, nil)
	}
	return newPool(clients, zaptest.NewLogger(t))
}

func TestNewPoolRequiresNodes(t *testing.T) {
	_, err := NewPool(nil, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrNoRPCNodes)
}

func TestNextRoundRobin(t *testing.T) {
	p := testPool(t, "a", "b", "c")

	var got []string
	for i := 0; i < 4; i++ {
		n, err := p.Next()
		require.NoError(t, err)
		got = append(got, n.URL)
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestNextSkipsInactiveAndReactivates(t *testing.T) {
	p := testPool(t, "a", "b")
	p.clients[0].SetActive(false)

	n, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", n.URL)

	p.clients[1].SetActive(false)
	n, err = p.Next()
	require.NoError(t, err)
	assert.NotNil(t, n)
	assert.True(t, p.clients[0].IsActive())
	assert.True(t, p.clients[1].IsActive())
}

func TestExecuteFailsOverOnNodeFailure(t *testing.T) {
	p := testPool(t, "bad", "good")

	calls := 0
	err := p.Execute(context.Background(), "getBlockHeight", func(context.Context, *solanarpc.Client) error {
		calls++
		if calls == 1 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.False(t, p.clients[0].IsActive())

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats[0].Errors)
	assert.Equal(t, uint64(1), stats[1].Successes)
}

func TestExecuteReturnsRPCErrorWithoutFailover(t *testing.T) {
	p := testPool(t, "a", "b")

	calls := 0
	err := p.Execute(context.Background(), "sendTransaction", func(context.Context, *solanarpc.Client) error {
		calls++
		return &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "sendTransaction", rpcErr.Method)
	assert.Equal(t, "a", rpcErr.NodeURL)
	assert.True(t, p.clients[0].IsActive())
}

func TestExecuteOnceDoesNotFailover(t *testing.T) {
	p := testPool(t, "a", "b")

	calls := 0
	err := p.ExecuteOnce(context.Background(), "sendTransaction", func(context.Context, *solanarpc.Client) error {
		calls++
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, p.clients[0].IsActive())
}
