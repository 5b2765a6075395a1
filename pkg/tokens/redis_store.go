package tokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bloodbridge:token:"

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
if redis.call('EXISTS', KEYS[2]) == 1 then return -1 end
redis.call('HSET', KEYS[1], 'request_id', ARGV[1], 'donor_id', ARGV[2], 'created_at', ARGV[3], 'used', '0')
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('SET', KEYS[2], ARGV[5], 'PX', ARGV[4])
return 1
`)

// redeemScript returns {status, request_id, donor_id, created_at}.
// status: 0 missing, 1 redeemed, 2 expired, 3 already used.
var redeemScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return {0} end
local f = redis.call('HMGET', KEYS[1], 'request_id', 'donor_id', 'created_at', 'used')
if tonumber(f[3]) < tonumber(ARGV[1]) then return {2, f[1], f[2], f[3]} end
if f[4] == '1' then return {3, f[1], f[2], f[3]} end
redis.call('HSET', KEYS[1], 'used', '1', 'used_at', ARGV[2])
return {1, f[1], f[2], f[3]}
`)

// RedisStore keeps tokens as hashes. Keys outlive the TTL by retention so expired
// links still report ErrExpired for a while before they disappear.
type RedisStore struct {
	rdb       *redis.Client
	retention time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, retention: 2 * ttl}
}

func tokenKey(token string) string {
	return redisKeyPrefix + token
}

func pairKey(requestID, donorID string) string {
	return redisKeyPrefix + "pair:" + requestID + ":" + donorID
}

func (s *RedisStore) Create(ctx context.Context, rec *Record) error {
	res, err := createScript.Run(ctx, s.rdb,
		[]string{tokenKey(rec.Token), pairKey(rec.RequestID, rec.DonorID)},
		rec.RequestID,
		rec.DonorID,
		strconv.FormatInt(rec.CreatedAt.UnixMicro(), 10),
		s.retention.Milliseconds(),
		rec.Token,
	).Int64()
	if err != nil {
		return fmt.Errorf("persisting response token: %w", err)
	}
	switch res {
	case 0:
		return errCollision
	case -1:
		return ErrAlreadyIssued
	}
	return nil
}

func (s *RedisStore) Redeem(ctx context.Context, token string, cutoff, now time.Time) (*Record, error) {
	res, err := redeemScript.Run(ctx, s.rdb, []string{tokenKey(token)},
		strconv.FormatInt(cutoff.UnixMicro(), 10),
		strconv.FormatInt(now.UnixMicro(), 10),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("redeeming response token: %w", err)
	}
	if len(res) == 0 {
		return nil, errors.New("redeeming response token: empty script reply")
	}

	status, _ := res[0].(int64)
	switch status {
	case 0:
		return nil, ErrNotFound
	case 2:
		return nil, ErrExpired
	case 3:
		return nil, ErrAlreadyUsed
	}

	rec, err := recordFromReply(token, res[1:])
	if err != nil {
		return nil, err
	}
	rec.Used = true
	usedAt := now
	rec.UsedAt = &usedAt
	return rec, nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*Record, error) {
	fields, err := s.rdb.HGetAll(ctx, tokenKey(token)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading response token: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding token created_at: %w", err)
	}
	rec := &Record{
		Token:     token,
		RequestID: fields["request_id"],
		DonorID:   fields["donor_id"],
		Used:      fields["used"] == "1",
		CreatedAt: time.UnixMicro(created).UTC(),
	}
	if raw, ok := fields["used_at"]; ok {
		if micros, err := strconv.ParseInt(raw, 10, 64); err == nil {
			usedAt := time.UnixMicro(micros).UTC()
			rec.UsedAt = &usedAt
		}
	}
	return rec, nil
}

// PurgeExpired is a no-op: redis expires keys on its own.
func (s *RedisStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func recordFromReply(token string, fields []interface{}) (*Record, error) {
	if len(fields) != 3 {
		return nil, fmt.Errorf("decoding token reply: expected 3 fields, got %d", len(fields))
	}
	requestID, _ := fields[0].(string)
	donorID, _ := fields[1].(string)
	createdRaw, _ := fields[2].(string)
	created, err := strconv.ParseInt(createdRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding token created_at: %w", err)
	}
	return &Record{
		Token:     token,
		RequestID: requestID,
		DonorID:   donorID,
		CreatedAt: time.UnixMicro(created).UTC(),
	}, nil
}
