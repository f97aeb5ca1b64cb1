//go:build integration_test

package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
)

const (
	wsAddr   = "ws://localhost:8080/ws"
	grpcAddr = "localhost:9090"
)

func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	checkHealth(t, ctx)

	var (
		wg    = new(sync.WaitGroup)
		room  = "demo-" + uuid.NewString()[:8]
		users = []string{"u1", "u2", "u3"}
	)

	// Prepare Redis subscriber
	subscribeRoom(t, makeRedis(t), wg, room)

	host := dial(t)
	send(t, host, domain.MessageJoinRoom, api.JoinRoom{RoomID: room, DisplayName: "quizmaster", IsAdminClaim: true})
	waitFor(t, host, domain.MessageAdminVerified)

	players := make(map[string]*websocket.Conn, len(users))
	for _, u := range users {
		c := dial(t)
		send(t, c, domain.MessageJoinRoom, api.JoinRoom{RoomID: room, DisplayName: u})
		waitFor(t, c, domain.MessageParticipantCount)
		players[u] = c
	}

	send(t, host, domain.MessageStartQuiz, api.StartQuiz{RoomID: room})

	// For each question, all users answer concurrently. The host never answers,
	// so every question runs until its deadline.
	for {
		var (
			q     domain.NewQuestion
			ended bool
		)
		for _, c := range players {
			env := waitFor(t, c, domain.MessageNewQuestion, domain.MessageQuizEnded)
			if env.Event == domain.MessageQuizEnded {
				ended = true
				continue
			}
			require.NoError(t, json.Unmarshal(env.Data, &q))
		}
		if ended {
			break
		}

		t.Logf("Starting question %d: %s", q.Index, q.Prompt)

		var eg errgroup.Group
		for u, c := range players {
			eg.Go(func() error {
				idx, opt := q.Index, len(u)%len(q.Options)
				b, err := json.Marshal(api.SubmitAnswer{RoomID: room, QuestionIndex: &idx, OptionIndex: &opt, DisplayName: u})
				if err != nil {
					return err
				}
				if err := c.WriteJSON(api.Envelope{Event: domain.MessageSubmitAnswer, Data: b}); err != nil {
					return fmt.Errorf("user %q submit answer: %w", u, err)
				}
				return nil
			})
		}
		require.NoError(t, eg.Wait())
	}

	_ = host.Close()
	for _, c := range players {
		_ = c.Close()
	}

	wg.Wait()
}

func checkHealth(t *testing.T, ctx context.Context) {
	conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func dial(t *testing.T) *websocket.Conn {
	c, _, err := websocket.DefaultDialer.Dial(wsAddr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func send(t *testing.T, c *websocket.Conn, event string, data any) {
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, c.WriteJSON(api.Envelope{Event: event, Data: b}))
}

// waitFor reads frames until one of the events arrives.
func waitFor(t *testing.T, c *websocket.Conn, events ...string) api.Envelope {
	require.NoError(t, c.SetReadDeadline(time.Now().Add(30*time.Second)))

	for {
		var env api.Envelope
		require.NoError(t, c.ReadJSON(&env))

		for _, e := range events {
			if env.Event == e {
				return env
			}
		}
	}
}

func subscribeRoom(t *testing.T, rc redis.UniversalClient, wg *sync.WaitGroup, room string) {
	wg.Add(1)
	sub := subscribeRedis(t, rc, fmt.Sprintf("livequiz:room:%s", room))
	go func() {
		defer wg.Done()

		for msg := range sub {
			var n api.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				t.Logf("unmarshal notification: %v", err)
				continue
			}

			var standings []api.Standing
			b, _ := json.Marshal(n.Data)
			if err := json.Unmarshal(b, &standings); err != nil {
				t.Logf("unmarshal standings: %v", err)
				continue
			}

			t.Logf("%s %s:\n%s", room, n.Event, formatStandings(standings))
			if n.Event == domain.EventNameQuizEnded {
				return
			}
		}
	}()
}

func subscribeRedis(t *testing.T, rc redis.UniversalClient, channel string) <-chan *redis.Message {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	sub := rc.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })

	c := make(chan *redis.Message)
	go func() {
		defer close(c)

		for {
			msg, err := sub.ReceiveMessage(ctx)
			if err != nil {
				t.Log(err)
				return
			}

			c <- msg
		}
	}()

	return c
}

func makeRedis(t *testing.T) redis.UniversalClient {
	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{"localhost:6379"},
	})
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}

	return r
}

func formatStandings(standings []api.Standing) string {
	var s string
	for _, e := range standings {
		s += fmt.Sprintf("%d. %s: %d\n", e.Rank, e.DisplayName, e.Score)
	}
	return s
}
