package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/ws"
)

func TestConn_SendIsBounded(t *testing.T) {
	c := ws.New(nil, ws.Config{ID: "c1", SendBuffer: 1})

	assert.True(t, c.Send(domain.Frame{Message: domain.ParticipantCount(1)}))
	assert.False(t, c.Send(domain.Frame{Message: domain.ParticipantCount(2)}), "a full buffer rejects the frame")

	c.Close()
	c.Close()
	assert.False(t, c.Send(domain.Frame{Message: domain.ParticipantCount(3)}), "a closed connection rejects frames")

	select {
	case <-c.Done():
	default:
		t.Fatal("Done is not closed")
	}
}

func TestConn_Loops(t *testing.T) {
	conns := make(chan *ws.Conn, 1)
	received := make(chan string, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wc, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := ws.New(wc, ws.Config{
			ID: "c1",
			Encode: func(f domain.Frame) ([]byte, error) {
				return json.Marshal(f.Message)
			},
		})
		conns <- c

		ctx := context.Background()
		go c.WriteLoop(ctx)
		c.ReadLoop(ctx, func(_ context.Context, msg []byte) {
			received <- string(msg)
		})
		close(received)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	c := <-conns

	require.True(t, c.Send(domain.Frame{Message: domain.ParticipantCount(1)}))
	require.True(t, c.Send(domain.Frame{Message: domain.ParticipantCount(2)}))

	for _, want := range []string{"1", "2"} {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(msg), "frames arrive in send order")
	}

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`hello`)))
	assert.Equal(t, "hello", <-received)

	c.Close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "closing sends a close frame: %v", err)

	select {
	case _, ok := <-received:
		assert.False(t, ok, "read loop ends once the connection is closed")
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end")
	}
}
