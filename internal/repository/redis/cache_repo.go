package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/internal/repository/redis/converter"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/clients"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/jitter"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/jimlawless/whereami"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// ttlJitter разносит истечение записей, заполненных одним запросом каталога.
	ttlJitter = 0.1
	// generationTTL намного дольше любого фонового прогрева
	generationTTL = 24 * time.Hour
)

// setIfGeneration: KEYS[1] — поколение, KEYS[2] — запись; ARGV — ожидаемое поколение, значение, TTL в мс.
var setIfGeneration = goredis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// CacheRepo — сквозной кэш карточек товаров. Источник истины остаётся в PostgreSQL,
// поэтому любые проблемы с отдельной записью трактуются как промах.
type CacheRepo struct {
	client *clients.RedisClient
	conv   converter.ProductConverter
	ttl    time.Duration
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, conv converter.ProductConverter,
	cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		conv:   conv,
		ttl:    cfg.ProductTTL,
		logger: logger,
	}
}

func (r *CacheRepo) GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, usecase.CacheGenerations, error) {
	found := make(map[int64]domain.Product, len(ids))
	gens := make(usecase.CacheGenerations, len(ids))
	if len(ids) == 0 {
		return found, gens, nil
	}

	// Записи и их поколения одним MGET: первая половина ответа — товары, вторая — поколения
	keys := r.keys(ids)
	values, err := r.client.Client.MGet(ctx, append(keys, r.genKeys(ids)...)...).Result()
	if err != nil {
		return nil, nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var stale []string
	for i, id := range ids {
		gens[id] = parseGeneration(values[len(ids)+i])

		product, ok, mismatch := r.decode(id, values[i])
		if mismatch {
			stale = append(stale, keys[i])
		}
		if ok {
			found[id] = product
		}
	}

	if len(stale) > 0 {
		if err := r.client.Client.Del(ctx, stale...).Err(); err != nil {
			r.logger.Warnf("drop stale cache entries %v: %v", stale, e.Wrap(whereami.WhereAmI(), err))
		}
	}

	return found, gens, nil
}

// decode разбирает одно значение MGET. mismatch — запись лежит под чужим ключом и подлежит удалению.
func (r *CacheRepo) decode(id int64, raw any) (product domain.Product, ok, mismatch bool) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return product, false, false
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		r.logger.Warnf("product %d: unexpected cache value type %T", id, raw)
		return product, false, false
	}

	var model converter.ProductRedisModel
	if err := json.Unmarshal(data, &model); err != nil {
		r.logger.Warnf("product %d: corrupt cache entry: %v", id, err)
		return product, false, false
	}

	if model.ID != id {
		r.logger.Warnf("product %d: cache entry holds product %d", id, model.ID)
		return product, false, true
	}

	entity, err := r.conv.ToEntity(&model)
	if err != nil {
		r.logger.Warnf("product %d: cached price unreadable: %v", id, err)
		return product, false, false
	}

	return *entity, true, false
}

// SetProducts пишет товары, чьё поколение совпадает с прочитанным в gens.
// Товары без известного поколения и непригодные к сериализации пропускаются.
func (r *CacheRepo) SetProducts(ctx context.Context, products []domain.Product, gens usecase.CacheGenerations) error {
	var errs []error
	for _, model := range r.conv.ToArrRedisModel(products) {
		gen, ok := gens[model.ID]
		if !ok {
			r.logger.Warnf("product %d: no cache generation, skip caching", model.ID)
			continue
		}

		data, err := json.Marshal(model)
		if err != nil {
			r.logger.Warnf("product %d: skip caching: %v", model.ID, err)
			continue
		}

		ttl := jitter.Duration(r.ttl, ttlJitter).Milliseconds()
		written, err := setIfGeneration.Run(ctx, r.client.Client,
			[]string{r.genKey(model.ID), r.key(model.ID)},
			strconv.FormatInt(gen, 10), data, ttl,
		).Int()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if written == 0 {
			r.logger.Debugf("product %d: cache generation moved on, refill dropped", model.ID)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// DeleteProducts удаляет записи и сдвигает их поколения, отменяя начатые прогревы.
func (r *CacheRepo) DeleteProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := r.client.Client.TxPipeline()
	pipe.Del(ctx, r.keys(ids)...)
	for _, key := range r.genKeys(ids) {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, generationTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (r *CacheRepo) key(id int64) string {
	return r.client.Key("product", strconv.FormatInt(id, 10))
}

func (r *CacheRepo) keys(ids []int64) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.key(id))
	}

	return keys
}

func (r *CacheRepo) genKey(id int64) string {
	return r.client.Key("product", strconv.FormatInt(id, 10), "gen")
}

func (r *CacheRepo) genKeys(ids []int64) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.genKey(id))
	}

	return keys
}

// parseGeneration: отсутствующий ключ — поколение 0. Нечитаемое значение даёт -1,
// с которым запись в кэш не пройдёт.
func parseGeneration(raw any) int64 {
	var s string
	switch v := raw.(type) {
	case nil:
		return 0
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return -1
	}

	gen, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}

	return gen
}
