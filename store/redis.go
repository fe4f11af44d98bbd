package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/alimasry/typing-replay/replay"
)

// RedisStore keeps a hash per document, a list of JSON-encoded revisions per
// document and a set indexing all document ids.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "replay"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) docKey(id string) string { return s.prefix + ":doc:" + id }
func (s *RedisStore) opsKey(id string) string { return s.prefix + ":ops:" + id }
func (s *RedisStore) indexKey() string        { return s.prefix + ":docs" }

func (s *RedisStore) Create(ctx context.Context, id, content string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	// createdAt doubles as the existence marker.
	ok, err := s.rdb.HSetNX(ctx, s.docKey(id), "createdAt", now).Result()
	if err != nil {
		return err
	}
	if !ok {
		return exists(id)
	}
	tx := s.rdb.TxPipeline()
	tx.HSet(ctx, s.docKey(id), "content", content, "version", 0, "updatedAt", now)
	tx.SAdd(ctx, s.indexKey(), id)
	_, err = tx.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*DocumentInfo, error) {
	fields, err := s.rdb.HGetAll(ctx, s.docKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, notFound(id)
	}
	version, _ := strconv.Atoi(fields["version"])
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["createdAt"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updatedAt"])
	return &DocumentInfo{
		ID:        id,
		Content:   fields["content"],
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *RedisStore) List(ctx context.Context) ([]DocumentInfo, error) {
	ids, err := s.rdb.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	result := make([]DocumentInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		result = append(result, *info)
	}
	return result, nil
}

func (s *RedisStore) ensure(ctx context.Context, id string) error {
	n, err := s.rdb.Exists(ctx, s.docKey(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *RedisStore) UpdateContent(ctx context.Context, id, content string, version int) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.rdb.HSet(ctx, s.docKey(id), "content", content, "version", version, "updatedAt", now).Err()
}

func (s *RedisStore) AppendOperation(ctx context.Context, id string, seq replay.Sequence, version int) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return fmt.Errorf("encode revision %d of %q: %w", version, id, err)
	}
	key := s.opsKey(id)
	// The push only commits if no other client touched the list since LLEN.
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if int(n)+1 != version {
			return conflict(id, version, int(n))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, data)
			pipe.HSet(ctx, s.docKey(id), "updatedAt", time.Now().UTC().Format(time.RFC3339Nano))
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("document %q: revision %d raced another writer: %w", id, version, ErrConflict)
	}
	return err
}

func (s *RedisStore) GetOperations(ctx context.Context, id string, fromVersion int) ([]replay.Sequence, error) {
	if err := s.ensure(ctx, id); err != nil {
		return nil, err
	}
	n, err := s.rdb.LLen(ctx, s.opsKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if fromVersion < 0 || int64(fromVersion) > n {
		return nil, fmt.Errorf("document %q: invalid version %d", id, fromVersion)
	}
	raw, err := s.rdb.LRange(ctx, s.opsKey(id), int64(fromVersion), -1).Result()
	if err != nil {
		return nil, err
	}
	result := make([]replay.Sequence, len(raw))
	for i, r := range raw {
		if err := json.Unmarshal([]byte(r), &result[i]); err != nil {
			return nil, fmt.Errorf("decode revision %d of %q: %w", fromVersion+i+1, id, err)
		}
	}
	return result, nil
}
