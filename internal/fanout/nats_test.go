package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringline/alertcall/internal/model"
	"github.com/ringline/alertcall/internal/testutil"
)

func TestPublisher_Publish(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	logger, _ := zap.NewDevelopment()
	pub, err := NewPublisher(js, logger)
	require.NoError(t, err)

	received := make(chan *nats.Msg, 1)
	sub, err := js.Subscribe(SubjectDispatched, func(msg *nats.Msg) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	evt := &model.Event{Priority: 5, Title: "Disk Full", Message: "92%"}
	require.NoError(t, pub.Publish(SubjectDispatched, evt))

	select {
	case msg := <-received:
		var env struct {
			Priority int       `json:"priority"`
			Title    string    `json:"title"`
			Message  string    `json:"message"`
			SeenAt   time.Time `json:"seen_at"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &env))
		require.Equal(t, 5, env.Priority)
		require.Equal(t, "Disk Full", env.Title)
		require.Equal(t, "92%", env.Message)
		require.False(t, env.SeenAt.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for alert")
	}
}

func TestNewPublisher_StreamAlreadyExists(t *testing.T) {
	js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	logger, _ := zap.NewDevelopment()
	_, err := NewPublisher(js, logger)
	require.NoError(t, err)

	// A second publisher must tolerate the existing stream.
	_, err = NewPublisher(js, logger)
	require.NoError(t, err)
}
