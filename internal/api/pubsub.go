package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event  string `json:"event"`
		RoomID string `json:"roomId"`
		Data   any    `json:"data"`
	}

	Standing struct {
		Rank        int    `json:"rank"`
		DisplayName string `json:"displayName"`
		Score       int64  `json:"score"`
	}
)

// PublishStandings publishes standings to the room channel and to the channel
// of every participant listed.
func (a *API) PublishStandings(ctx context.Context, roomID, event string, entries []domain.LeaderboardEntry) error {
	data := make([]Standing, 0, len(entries))
	for i, entry := range entries {
		data = append(data, Standing{
			Rank:        i + 1,
			DisplayName: entry.DisplayName,
			Score:       entry.Score,
		})
	}

	if err := a.publishNotification(ctx, a.roomChannel(roomID), roomID, event, data); err != nil {
		return err
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for i, entry := range entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.participantChannel(roomID, entry.ParticipantID), roomID, event, data[i])
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, roomID, event string, data any) error {
	n := Notification{
		Event:  event,
		RoomID: roomID,
		Data:   data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}

func (a *API) roomChannel(roomID string) string {
	return fmt.Sprintf("%s:room:%s", a.prefix, roomID)
}

func (a *API) participantChannel(roomID, participantID string) string {
	return fmt.Sprintf("%s:room:%s:participant:%s", a.prefix, roomID, participantID)
}
