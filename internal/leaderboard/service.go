// Package leaderboard mirrors room standings into Redis so they can be read
// outside the room, and publishes throttled leaderboard.updated events.
package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond
	keyTTL          = 24 * time.Hour
	maxTxAttempts   = 5
)

var errStale = stderrors.New("stale leaderboard snapshot")

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
	subs   []*event.Subscription
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.subs = append(s.subs,
		s.eb.Subscribe(domain.EventNameScoreUpdated, func(ctx context.Context, e event.Event) error {
			return s.UpdateLeaderboard(ctx, e.(domain.EventScoreUpdated))
		}),
		s.eb.Subscribe(domain.EventNameConnectionLeft, func(ctx context.Context, e event.Event) error {
			left := e.(domain.EventConnectionLeft)
			return s.RemoveParticipant(ctx, left.RoomID, left.ConnID)
		}),
		s.eb.Subscribe(domain.EventNameRoomDestroyed, func(ctx context.Context, e event.Event) error {
			return s.DeleteLeaderboard(ctx, e.(domain.EventRoomDestroyed).RoomID)
		}),
	)

	return s
}

// Close stops listening to room events.
func (s *Service) Close() {
	for _, sub := range s.subs {
		sub.Close()
	}
}

type GetLeaderboardRequest struct {
	RoomID string
}

// GetLeaderboard returns the standings of a room, highest score first, ties in join order.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) ([]domain.LeaderboardEntry, error) {
	var (
		scores *redis.ZSliceCmd
		names  *redis.MapStringStringCmd
		order  *redis.MapStringStringCmd
	)
	_, err := s.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		scores = p.ZRevRangeWithScores(ctx, s.scoresKey(req.RoomID), 0, -1)
		names = p.HGetAll(ctx, s.namesKey(req.RoomID))
		order = p.HGetAll(ctx, s.orderKey(req.RoomID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: room=%s: %w", req.RoomID, err)
	}

	zs := scores.Val()
	if len(zs) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: room=%s", req.RoomID))
	}

	joinOrder := func(id string) int {
		n, err := strconv.Atoi(order.Val()[id])
		if err != nil {
			return len(zs)
		}
		return n
	}

	sort.SliceStable(zs, func(i, j int) bool {
		if zs[i].Score != zs[j].Score {
			return zs[i].Score > zs[j].Score
		}
		return joinOrder(zs[i].Member.(string)) < joinOrder(zs[j].Member.(string))
	})

	entries := make([]domain.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		id := z.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: id,
			DisplayName:   names.Val()[id],
			Score:         int64(z.Score),
		})
	}

	return entries, nil
}

// UpdateLeaderboard replaces the standings of a room with the scores of the event.
// Scores are listed in join order. Snapshots older than the stored one are dropped,
// so handlers running out of order never bring back stale scores.
func (s *Service) UpdateLeaderboard(ctx context.Context, e domain.EventScoreUpdated) error {
	members := make([]redis.Z, 0, len(e.Scores))
	names := make(map[string]any, len(e.Scores))
	order := make(map[string]any, len(e.Scores))
	for i, sc := range e.Scores {
		members = append(members, redis.Z{Score: float64(sc.TotalScore), Member: sc.ParticipantID})
		names[sc.ParticipantID] = sc.DisplayName
		order[sc.ParticipantID] = i
	}

	keys := []string{s.scoresKey(e.RoomID), s.namesKey(e.RoomID), s.orderKey(e.RoomID)}
	versionKey := s.versionKey(e.RoomID)

	apply := func(tx *redis.Tx) error {
		v, err := tx.Get(ctx, versionKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if e.Version <= v {
			return errStale
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keys...)
			if len(members) > 0 {
				p.ZAdd(ctx, keys[0], members...)
				p.HSet(ctx, keys[1], names)
				p.HSet(ctx, keys[2], order)
				for _, k := range keys {
					p.Expire(ctx, k, keyTTL)
				}
			}
			p.Set(ctx, versionKey, e.Version, keyTTL)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxAttempts; i++ {
		err = s.redis.Watch(ctx, apply, versionKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	switch {
	case errors.Is(err, errStale):
		return nil
	case err != nil:
		return fmt.Errorf("update leaderboard: room=%s version=%d: %w", e.RoomID, e.Version, err)
	}

	return s.schedulePublishLeaderboard(ctx, e.RoomID)
}

// RemoveParticipant drops a participant who left the room.
func (s *Service) RemoveParticipant(ctx context.Context, roomID, participantID string) error {
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, s.scoresKey(roomID), participantID)
		p.HDel(ctx, s.namesKey(roomID), participantID)
		p.HDel(ctx, s.orderKey(roomID), participantID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove participant: room=%s: %w", roomID, err)
	}

	return nil
}

// DeleteLeaderboard forgets a destroyed room.
func (s *Service) DeleteLeaderboard(ctx context.Context, roomID string) error {
	err := s.redis.Del(ctx,
		s.scoresKey(roomID),
		s.namesKey(roomID),
		s.orderKey(roomID),
		s.timeKey(roomID),
		s.pendingKey(roomID),
		s.versionKey(roomID),
	).Err()
	if err != nil {
		return fmt.Errorf("delete leaderboard: room=%s: %w", roomID, err)
	}

	return nil
}

// schedulePublishLeaderboard publishes at most one leaderboard.updated per room and
// interval. Changes throttled inside the interval are published once it ends.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, roomID string) error {
	// SetNX keeps several instances from publishing the same change.
	ok, err := s.redis.SetNX(ctx, s.timeKey(roomID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if ok {
		return s.publishLeaderboard(ctx, roomID)
	}

	ok, err = s.redis.SetNX(ctx, s.pendingKey(roomID), 1, 2*publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx pending: %w", err)
	}

	if !ok {
		return nil
	}

	wait, err := s.redis.PTTL(ctx, s.timeKey(roomID)).Result()
	if err != nil || wait <= 0 || wait > publishInterval {
		wait = publishInterval
	}

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.redis.Del(ctx, s.pendingKey(roomID)).Err(); err != nil {
		return fmt.Errorf("del pending: %w", err)
	}
	if err := s.redis.Set(ctx, s.timeKey(roomID), time.Now().UnixMilli(), publishInterval).Err(); err != nil {
		return fmt.Errorf("set publish time: %w", err)
	}

	return s.publishLeaderboard(ctx, roomID)
}

func (s *Service) publishLeaderboard(ctx context.Context, roomID string) error {
	entries, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{RoomID: roomID})
	if err != nil && errors.Convert(err).Code == errors.CodeNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get leaderboard failed: room=%s: %w", roomID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		RoomID:  roomID,
		Entries: entries,
	})

	return nil
}

func (s *Service) scoresKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:leaderboard", s.prefix, roomID)
}

func (s *Service) namesKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:names", s.prefix, roomID)
}

func (s *Service) orderKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:order", s.prefix, roomID)
}

func (s *Service) timeKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:time", s.prefix, roomID)
}

func (s *Service) pendingKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:pending", s.prefix, roomID)
}

func (s *Service) versionKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:version", s.prefix, roomID)
}
