package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastrogpt/internal/types"
)

func TestInMemoryRoundTrip(t *testing.T) {
	b, err := New(Settings{})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := b.Subscriber.Subscribe(ctx, TopicSelect)
	require.NoError(t, err)

	require.NoError(t, b.PublishJSON(TopicSelect, types.SelectionEvent{Name: "Echo", URL: "http://h/api/my/echo"}))

	select {
	case msg := <-ch:
		var ev types.SelectionEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		require.Equal(t, "Echo", ev.Name)
		require.Equal(t, "http://h/api/my/echo", ev.URL)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishJSONRejectsUnencodable(t *testing.T) {
	b, err := New(Settings{})
	require.NoError(t, err)
	defer b.Close()

	err = b.PublishJSON(TopicDisplay, map[string]any{"bad": make(chan int)})
	require.ErrorContains(t, err, "encoding display.payload message")
}
