package registry_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/registry"
)

func TestRegistry_Bind(t *testing.T) {
	ctx := context.Background()
	r := registry.New(registry.Config{})

	r.Add(conn("c1"))
	r.Add(conn("c2"))

	prev, err := r.Bind(ctx, "c1", "q1")
	require.NoError(t, err)
	assert.Empty(t, prev)

	_, err = r.Bind(ctx, "c2", "q1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, ids(r.Members("q1")))

	prev, err = r.Bind(ctx, "c1", "q2")
	require.NoError(t, err)
	assert.Equal(t, "q1", prev, "joining a second room leaves the first")
	assert.Equal(t, []string{"c2"}, ids(r.Members("q1")))
	assert.Equal(t, []string{"c1"}, ids(r.Members("q2")))

	roomID, ok := r.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "q2", roomID)

	_, ok = r.Member("q1", "c1")
	assert.False(t, ok)

	_, err = r.Bind(ctx, "ghost", "q1")
	assert.ErrorIs(t, err, errors.ErrNotInRoom)
}

func TestRegistry_Remove(t *testing.T) {
	ctx := context.Background()
	r := registry.New(registry.Config{})

	r.Add(conn("c1"))
	r.Add(conn("c2"))
	_, err := r.Bind(ctx, "c1", "q1")
	require.NoError(t, err)

	roomID, ok := r.Remove(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "q1", roomID)
	assert.Empty(t, r.Members("q1"))

	_, ok = r.Remove(ctx, "c2")
	assert.False(t, ok, "c2 never joined a room")

	_, ok = r.Remove(ctx, "c1")
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistry_Notifications(t *testing.T) {
	ctx := context.Background()
	eb := event.NewBus()

	var (
		mu       sync.Mutex
		received []event.Event
	)
	record := func(ctx context.Context, e event.Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		return nil
	}
	eb.Subscribe(domain.EventNameConnectionJoined, record)
	eb.Subscribe(domain.EventNameConnectionLeft, record)

	r := registry.New(registry.Config{EventBus: eb})
	r.Add(conn("c1"))

	_, err := r.Bind(ctx, "c1", "q1")
	require.NoError(t, err)
	_, err = r.Bind(ctx, "c1", "q2")
	require.NoError(t, err)
	r.Remove(ctx, "c1")

	eb.Stop()

	assert.ElementsMatch(t, []event.Event{
		domain.EventConnectionJoined{ConnID: "c1", RoomID: "q1"},
		domain.EventConnectionLeft{ConnID: "c1", RoomID: "q1"},
		domain.EventConnectionJoined{ConnID: "c1", RoomID: "q2"},
		domain.EventConnectionLeft{ConnID: "c1", RoomID: "q2"},
	}, received)
}

type conn string

func (c conn) ID() string { return string(c) }

func (c conn) Send(_ domain.Frame) bool { return true }

func (c conn) Close() {}

func ids(cs []registry.Conn) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID())
	}
	sort.Strings(out)
	return out
}

func TestRegistry_Unbind(t *testing.T) {
	ctx := context.Background()
	r := registry.New(registry.Config{})

	r.Add(conn("c1"))
	_, err := r.Bind(ctx, "c1", "q1")
	require.NoError(t, err)

	roomID, ok := r.Unbind(ctx, "c1")
	require.True(t, ok)
	assert.Equal(t, "q1", roomID)
	assert.Empty(t, r.Members("q1"))

	_, ok = r.Conn("c1")
	assert.True(t, ok, "the connection stays registered")

	_, ok = r.Unbind(ctx, "c1")
	assert.False(t, ok)
}
