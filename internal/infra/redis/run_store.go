package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/domain"
)

// RunStore keeps a room-run's materialized question list in Redis so every
// instance serves the identical list for a given index. The TTL should
// comfortably outlive a class session; regenerating mid-run would hand
// different clients different questions.
type RunStore struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewRunStore(client *redis.Client, ttl time.Duration) *RunStore {
	return &RunStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *RunStore) GetOrCreate(ctx context.Context, roomID string, build func(context.Context) ([]domain.Question, error)) ([]domain.Question, error) {
	key := s.key(roomID)

	if questions, ok := s.load(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := s.sf.Do(roomID, func() (interface{}, error) {
		// Re-check in case another goroutine materialized while we waited.
		if questions, ok := s.load(ctx, key); ok {
			return questions, nil
		}

		questions, err := build(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		// SetNX so a concurrent materialization on another instance wins
		// exactly once; re-read the stored run if we lost the race.
		stored, err := s.client.SetNX(ctx, key, payload, s.ttlWithJitter()).Result()
		if err != nil {
			return nil, err
		}
		if !stored {
			if cached, ok := s.load(ctx, key); ok {
				return cached, nil
			}
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (s *RunStore) load(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (s *RunStore) key(roomID string) string {
	return "room:" + roomID + ":run"
}

func (s *RunStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
