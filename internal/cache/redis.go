package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/orders/internal/domain"
)

const (
	defaultKeyPrefix = "orders:view:"
	scanBatchSize    = 200
)

// Redis хранит view заказов в Redis в виде JSON. TTL не выставляется.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis создаёт кэш поверх готового клиента. Пустой prefix заменяется значением по умолчанию.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(id int64) string {
	return r.prefix + strconv.FormatInt(id, 10)
}

// Get читает view. redis.Nil означает промах.
func (r *Redis) Get(ctx context.Context, id int64) (domain.OrderView, bool, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderView{}, false, nil
		}
		return domain.OrderView{}, false, fmt.Errorf("redis get order view %d: %w", id, err)
	}

	var view domain.OrderView
	if err := json.Unmarshal(raw, &view); err != nil {
		return domain.OrderView{}, false, fmt.Errorf("decode order view %d: %w", id, err)
	}
	return view, true, nil
}

// Put сохраняет view без TTL, перезаписывая прежнее значение.
func (r *Redis) Put(ctx context.Context, view domain.OrderView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode order view %d: %w", view.ID, err)
	}
	if err := r.client.Set(ctx, r.key(view.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set order view %d: %w", view.ID, err)
	}
	return nil
}

// Evict удаляет view заказа. Отсутствие ключа не считается ошибкой.
func (r *Redis) Evict(ctx context.Context, id int64) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del order view %d: %w", id, err)
	}
	return nil
}

// EvictAll удаляет все ключи с префиксом кэша.
// DEL начинается только после полного прохода SCAN.
func (r *Redis) EvictAll(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan order views: %w", err)
	}

	for len(keys) > 0 {
		n := min(len(keys), scanBatchSize)
		if err := r.client.Del(ctx, keys[:n]...).Err(); err != nil {
			return fmt.Errorf("redis del order views: %w", err)
		}
		keys = keys[n:]
	}
	return nil
}

// Ping проверяет доступность Redis. Используется health-проверкой.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var _ domain.OrderCache = (*Redis)(nil)
