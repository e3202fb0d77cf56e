package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptlab/promptlab/pkg/logging"
)

const redisKeyPrefix = "history:"

// RedisStore is a Store backed by Redis, one JSON value per
// (entity, state) key.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	logger *logging.Logger
}

// NewRedisStore builds a store over the provided client.
func NewRedisStore(client *redis.Client, tracer trace.Tracer, logger *logging.Logger) *RedisStore {
	if client == nil {
		panic("history: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("promptlab.internal.history")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisStore{redis: client, tracer: tracer, logger: logger}
}

var _ Store = (*RedisStore)(nil)

func recordKey(entityID string, state State) string {
	return fmt.Sprintf("%s%s:%s", redisKeyPrefix, entityID, state)
}

func (s *RedisStore) Upsert(ctx context.Context, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "history.upsert")
	defer span.End()

	k := recordKey(record.EntityID, record.State)
	existing, err := s.load(ctx, k)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if existing != nil && !record.Supersedes(existing) {
		return nil
	}
	if err := s.set(ctx, k, record); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *RedisStore) QueryByEntity(ctx context.Context, entityID string) ([]*Record, error) {
	ctx, span := s.tracer.Start(ctx, "history.query_by_entity")
	defer span.End()

	var out []*Record
	for _, state := range []State{StateCurrent, StateLast, StateReset} {
		record, err := s.load(ctx, recordKey(entityID, state))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if record != nil {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *RedisStore) SupersedeAndInsert(ctx context.Context, outgoing, incoming *Record) error {
	superseded := outgoing.Clone()
	installed := incoming.Clone()
	if superseded == nil || installed == nil {
		return fmt.Errorf("history: supersede needs both records: %w", ErrInvalidRecord)
	}
	superseded.State = StateLast
	installed.State = StateCurrent
	if err := superseded.Validate(); err != nil {
		return err
	}
	if err := installed.Validate(); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "history.supersede_and_insert")
	defer span.End()

	lastKey := recordKey(superseded.EntityID, StateLast)
	priorLast, err := s.load(ctx, lastKey)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.set(ctx, lastKey, superseded); err != nil {
		span.RecordError(err)
		return err
	}
	if err := s.set(ctx, recordKey(installed.EntityID, StateCurrent), installed); err != nil {
		span.RecordError(err)
		// Compensate: restore the previous last slot so the pair of writes
		// is all-or-nothing from the caller's view.
		if priorLast != nil {
			if rbErr := s.set(ctx, lastKey, priorLast); rbErr != nil {
				s.logger.Error("history: rollback of superseded record failed",
					"entity_id", superseded.EntityID, "error", rbErr)
			}
		} else if rbErr := s.redis.Del(ctx, lastKey).Err(); rbErr != nil {
			s.logger.Error("history: rollback of superseded record failed",
				"entity_id", superseded.EntityID, "error", rbErr)
		}
		return err
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, entityID string, state State) error {
	ctx, span := s.tracer.Start(ctx, "history.delete")
	defer span.End()

	n, err := s.redis.Del(ctx, recordKey(entityID, state)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("history: failed to delete record: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Record, error) {
	ctx, span := s.tracer.Start(ctx, "history.list")
	defer span.End()

	var out []*Record
	iter := s.redis.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if !strings.HasPrefix(k, redisKeyPrefix) {
			continue
		}
		record, err := s.load(ctx, k)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if record != nil {
			out = append(out, record)
		}
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("history: failed to scan records: %w", err)
	}
	return out, nil
}

func (s *RedisStore) load(ctx context.Context, key string) (*Record, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("history: failed to load record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("history: failed to decode record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) set(ctx context.Context, key string, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("history: failed to marshal record: %w", err)
	}
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("history: failed to persist record: %w", err)
	}
	return nil
}
