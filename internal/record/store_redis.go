package record

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/duochess/internal/domain"
	"github.com/kapu/duochess/internal/obslog"
)

const (
	keyGamePrefix = "game:state:"
	keyIndex      = "game:state:index"
	eventsChannel = "game:state:events"
)

// RedisStore keeps each GameRecord as a JSON blob under game:state:<id>,
// indexes creation times in a sorted set for the "latest" read, and publishes
// change events on a pub/sub channel.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for record store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func gameKey(id string) string { return keyGamePrefix + strings.TrimSpace(id) }

func (s *RedisStore) Latest(ctx context.Context) (*domain.GameRecord, error) {
	ids, err := s.rdb.ZRevRange(ctx, keyIndex, 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.Get(ctx, ids[0])
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.GameRecord, error) {
	raw, err := s.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.GameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) Create(ctx context.Context, rec *domain.GameRecord) (*domain.GameRecord, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil game record")
	}
	cp := rec.Clone()
	if strings.TrimSpace(cp.ID) == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, gameKey(cp.ID), raw, 0).Err(); err != nil {
		return nil, err
	}
	if err := s.rdb.ZAdd(ctx, keyIndex, redis.Z{Score: float64(now.UnixNano()), Member: cp.ID}).Err(); err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Action: ActionCreate, ID: cp.ID})
	obslog.L().Info("record_create", zap.String("game_id", cp.ID))
	return cp, nil
}

// Update is deliberately unguarded: the last durable write wins and clients
// converge through the change feed.
func (s *RedisStore) Update(ctx context.Context, id string, apply func(*domain.GameRecord) error) (*domain.GameRecord, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}
	if err := apply(cur); err != nil {
		return nil, err
	}
	cur.UpdatedAt = time.Now()
	raw, err := json.Marshal(cur)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, gameKey(id), raw, 0).Err(); err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Action: ActionUpdate, ID: id})
	return cur, nil
}

// UpdateChecked wraps the read-modify-write cycle in WATCH so a concurrent
// write aborts it with ErrConflict.
func (s *RedisStore) UpdateChecked(ctx context.Context, id string, apply func(*domain.GameRecord) error) (*domain.GameRecord, error) {
	key := gameKey(id)
	var out *domain.GameRecord
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur domain.GameRecord
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if err := apply(&cur); err != nil {
			return err
		}
		cur.UpdatedAt = time.Now()
		newRaw, err := json.Marshal(&cur)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, newRaw, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		out = &cur
		return nil
	}, key)
	if err != nil {
		if err == redis.TxFailedErr {
			return nil, ErrConflict
		}
		return nil, err
	}
	s.publish(ctx, Event{Action: ActionUpdate, ID: id})
	return out, nil
}

func (s *RedisStore) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := s.rdb.Subscribe(ctx, eventsChannel)
	// force the SUBSCRIBE roundtrip so a failing connection surfaces here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				obslog.L().Warn("record_event_decode_error", zap.Error(err))
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &Subscription{events: events, close: ps.Close}, nil
}

func (s *RedisStore) publish(ctx context.Context, ev Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, eventsChannel, raw).Err(); err != nil {
		obslog.L().Warn("record_event_publish_error", zap.String("game_id", ev.ID), zap.Error(err))
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
