package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWait = 5 * time.Second
	pollEvery   = 100 * time.Millisecond
)

// receive moves one message from the pending list to the in-flight ZSET,
// scored with the moment it becomes visible again.
var receiveScript = redis.NewScript(
	// language=Lua
	`
	local v = redis.call('RPOP', KEYS[1])
	if not v then return false end
	redis.call('ZADD', KEYS[2], ARGV[1], v)
	return v
	`,
)

// reclaim returns one expired in-flight message to the pending list.
var reclaimScript = redis.NewScript(
	// language=Lua
	`
	local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
	if #items == 0 then return false end
	local m = items[1]
	if redis.call('ZREM', KEYS[1], m) == 1 then
		redis.call('LPUSH', KEYS[2], m)
		return m
	end
	return false
	`,
)

type envelope struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

// RedisQueue - list backed queue with SQS-like visibility timeout
type RedisQueue struct {
	rdb        redis.UniversalClient
	pending    string
	inflight   string
	visibility time.Duration
	wait       time.Duration
}

// InitRedisQueue ...
func InitRedisQueue(rdb redis.UniversalClient, cfg Config) *RedisQueue {
	visibility := time.Duration(cfg.Visibility) * time.Second
	if visibility <= 0 {
		visibility = 10 * time.Minute
	}
	prefix := "packer:{" + cfg.Name + "}:"
	return &RedisQueue{
		rdb:        rdb,
		pending:    prefix + "pending",
		inflight:   prefix + "inflight",
		visibility: visibility,
		wait:       defaultWait,
	}
}

// WithWait overrides how long ReceiveMessage waits for a message.
func (q *RedisQueue) WithWait(wait time.Duration) *RedisQueue {
	q.wait = wait
	return q
}

// SendMessage ...
func (q *RedisQueue) SendMessage(ctx context.Context, message string) error {
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), Body: message})
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.pending, raw).Err(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"event": "send_message",
		"queue": "redis",
	}).Debug(q.pending)
	return nil
}

// ReceiveMessage ...
func (q *RedisQueue) ReceiveMessage(ctx context.Context) (*RecvMessage, error) {
	deadline := time.Now().Add(q.wait)
	for {
		msg, err := q.receiveOne(ctx)
		if !errors.Is(err, ErrNoMessage) {
			return msg, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrNoMessage
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollEvery):
		}
	}
}

func (q *RedisQueue) receiveOne(ctx context.Context) (*RecvMessage, error) {
	visibleAt := time.Now().Add(q.visibility).Unix()
	res, err := receiveScript.Run(ctx, q.rdb, []string{q.pending, q.inflight}, strconv.FormatInt(visibleAt, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		return nil, err
	}
	raw, ok := res.(string)
	if !ok {
		return nil, ErrNoMessage
	}
	var env envelope
	if err := sonic.UnmarshalString(raw, &env); err != nil {
		// unreadable payload would be redelivered forever
		q.rdb.ZRem(ctx, q.inflight, raw)
		return nil, err
	}
	log.WithFields(log.Fields{
		"event": "receive_message",
		"queue": "redis",
	}).Debug(env.ID)
	return &RecvMessage{ID: env.ID, Body: env.Body, Handler: raw}, nil
}

// Acknowledge ...
func (q *RedisQueue) Acknowledge(ctx context.Context, message *RecvMessage) error {
	if err := q.rdb.ZRem(ctx, q.inflight, message.Handler).Err(); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"event": "delete_message",
		"queue": "redis",
	}).Debug(message.ID)
	return nil
}

// Reclaim returns up to limit in-flight messages whose visibility ran out.
func (q *RedisQueue) Reclaim(ctx context.Context, limit int) (int, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	moved := 0
	for moved < limit {
		res, err := reclaimScript.Run(ctx, q.rdb, []string{q.inflight, q.pending}, now).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, err
		}
		if _, ok := res.(string); !ok {
			break
		}
		moved++
	}
	return moved, nil
}
