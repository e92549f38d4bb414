package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	recordPrefix = "auditflow:task:"
	recordTTL    = 24 * time.Hour
)

// Journal keeps the latest Record of every task in Redis so task history
// survives the in-memory scheduler state.
type Journal struct {
	client *redis.Client
}

func New(addr, password string, db int) (*Journal, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Journal{client: client}, nil
}

func (j *Journal) Close() error {
	return j.client.Close()
}

func (j *Journal) Save(ctx context.Context, r *task.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := j.client.Set(ctx, recordPrefix+r.ID, data, recordTTL).Err(); err != nil {
		return fmt.Errorf("save record: %w", err)
	}

	return nil
}

// Get returns nil, nil when the record does not exist.
func (j *Journal) Get(ctx context.Context, id string) (*task.Record, error) {
	data, err := j.client.Get(ctx, recordPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}

	var r task.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	return &r, nil
}

func (j *Journal) List(ctx context.Context) ([]*task.Record, error) {
	var keys []string
	iter := j.client.Scan(ctx, 0, recordPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	if len(keys) == 0 {
		return []*task.Record{}, nil
	}

	pipe := j.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	records := make([]*task.Record, 0, len(keys))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}

		var r task.Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		records = append(records, &r)
	}

	return records, nil
}

func (j *Journal) Delete(ctx context.Context, id string) error {
	if err := j.client.Del(ctx, recordPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}
