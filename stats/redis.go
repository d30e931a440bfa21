package stats

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"strconv"
	"strings"
	"time"
)

var (
	_ Recorder = &RedisRecorder{}
	_ Reader   = &RedisRecorder{}
)

// RedisRecorder aggregates decisions into redis hashes:
//
//	<prefix>:total             cumulative, never expires
//	<prefix>:minute:<yyyymmddhhmm>  per-minute, expires after ttl
//	<prefix>:route             "<method> <path>:<outcome>" fields
//	<prefix>:user:<user>       per-user, expires after ttl, only when tracking users
type RedisRecorder struct {
	client *redis.Client
	prefix string
	// ttl only applies to the minute and user hashes.
	ttl        time.Duration
	trackUsers bool
}

type RedisOption func(*RedisRecorder)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRecorder) { r.prefix = strings.Trim(prefix, ":") }
}

func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRecorder) { r.ttl = ttl }
}

func WithRedisTrackUsers(track bool) RedisOption {
	return func(r *RedisRecorder) { r.trackUsers = track }
}

func NewRedisRecorder(client *redis.Client, opts ...RedisOption) *RedisRecorder {
	r := &RedisRecorder{
		client: client,
		prefix: "admission:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRecorder) totalKey() string {
	return r.prefix + ":total"
}

func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Outcome)

	p := r.client.Pipeline()
	p.HIncrBy(ctx, r.totalKey(), field, 1)

	minuteKey := fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
	p.HIncrBy(ctx, minuteKey, field, 1)
	if r.ttl > 0 {
		p.Expire(ctx, minuteKey, r.ttl)
	}

	if rt := strings.TrimSpace(route(ev)); rt != "" {
		p.HIncrBy(ctx, r.prefix+":route", rt+":"+field, 1)
	}

	if r.trackUsers && ev.User != "" {
		userKey := r.prefix + ":user:" + ev.User
		p.HIncrBy(ctx, userKey, field, 1)
		if r.ttl > 0 {
			p.Expire(ctx, userKey, r.ttl)
		}
	}

	if _, err := p.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record %v decision: %w", field, err)
	}
	return nil
}

func (r *RedisRecorder) Totals(ctx context.Context) (Counters, error) {
	values, err := r.client.HGetAll(ctx, r.totalKey()).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("failed to read key %v: %w", r.totalKey(), err)
	}

	var c Counters
	for field, value := range values {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("failed to parse field %v of key %v: %w", field, r.totalKey(), err)
		}
		c.add(Outcome(field), n)
	}
	return c, nil
}
