package ami

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/testutil"
)

func newTestClient(srv *testutil.AMIServer) *Client {
	host, port := srv.Addr()
	return NewClient(Credentials{
		Host:     host,
		Port:     port,
		Username: "ntfybridge",
		Secret:   "secret",
	}, zap.NewNop())
}

func TestClient_ConnectAndOriginate(t *testing.T) {
	srv, cleanup := testutil.StartAMIServer(t)
	defer cleanup()

	client := newTestClient(srv)
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx))

	err := client.Originate(ctx, OriginateRequest{
		Channel:  "PJSIP/1000",
		Context:  "from-internal",
		Exten:    "1000",
		Priority: 1,
		CallerID: "NTFY Bridge <7777>",
		Timeout:  30 * time.Second,
	})
	require.NoError(t, err)

	client.Close()
	srv.WaitForAction(t, "Logoff", 2*time.Second)

	require.Equal(t, 1, srv.Sessions())
	require.True(t, srv.ReceivedAction("Login"))
	require.True(t, srv.ReceivedAction("Originate"))

	blocks := srv.Blocks()
	require.Len(t, blocks, 3)
	require.Equal(t,
		"Action: Login\r\nUsername: ntfybridge\r\nSecret: secret\r\nEvents: off\r\n\r\n",
		string(blocks[0]))
	require.Contains(t, string(blocks[1]), "Exten: 1000\r\n")
	require.Contains(t, string(blocks[1]), "Timeout: 30000\r\n")
	require.Contains(t, string(blocks[1]), "Async: true\r\n")
}

func TestClient_LoginRejected(t *testing.T) {
	srv, cleanup := testutil.StartAMIServer(t)
	defer cleanup()
	srv.RejectLogin = true

	client := newTestClient(srv)
	defer client.Close()

	err := client.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	// The session never authenticated, so no command may follow.
	err = client.Originate(context.Background(), OriginateRequest{})
	require.ErrorIs(t, err, ErrNotConnected)
	require.False(t, srv.ReceivedAction("Originate"))
}

func TestClient_ConnectRefused(t *testing.T) {
	client := NewClient(Credentials{Host: "127.0.0.1", Port: 1}, zap.NewNop())
	defer client.Close()

	err := client.Connect(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAuthenticationFailed)
}

func TestClient_OriginateBeforeConnect(t *testing.T) {
	client := NewClient(Credentials{Host: "127.0.0.1", Port: 1}, zap.NewNop())

	err := client.Originate(context.Background(), OriginateRequest{})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv, cleanup := testutil.StartAMIServer(t)
	defer cleanup()

	// Close without a prior connect.
	client := newTestClient(srv)
	client.Close()

	// Close twice after a connect.
	require.NoError(t, client.Connect(context.Background()))
	client.Close()
	client.Close()
}

func TestClient_ConnectTwice(t *testing.T) {
	srv, cleanup := testutil.StartAMIServer(t)
	defer cleanup()

	client := newTestClient(srv)
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	require.ErrorIs(t, client.Connect(context.Background()), ErrAlreadyConnected)
}
