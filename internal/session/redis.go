package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/models"
	"docchat/internal/util"
)

const historyKeyPrefix = "docchat:history:"

// redisCmds is the subset of *redis.Client the history store uses.
type redisCmds interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps chat histories in Redis so that several API processes can
// serve the same sessions. Each session owns a list of JSON turns and a
// sequence counter.
type RedisStore struct {
	client redisCmds
}

var _ History = (*RedisStore)(nil)

func NewRedisStore(client redisCmds) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis opens a client for addr, which is either host:port or a
// redis:// URL, and checks it with a PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr, Password: password, DB: db}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return rdb, nil
}

func historyKey(sessionID string) string { return historyKeyPrefix + sessionID }
func seqKey(sessionID string) string     { return historyKeyPrefix + sessionID + ":seq" }

func (s *RedisStore) AppendExchange(ctx context.Context, sessionID, question, answer string) error {
	last, err := s.client.IncrBy(ctx, seqKey(sessionID), 2).Result()
	if err != nil {
		return util.Errorf(util.ErrHistory, "session.AppendExchange", "reserve seq for %s: %w", sessionID, err)
	}
	q, err := json.Marshal(models.ChatTurn{Role: models.RoleUser, Content: question, Seq: int(last - 1)})
	if err != nil {
		return util.NewError(util.ErrHistory, "session.AppendExchange", err)
	}
	a, err := json.Marshal(models.ChatTurn{Role: models.RoleAssistant, Content: answer, Seq: int(last)})
	if err != nil {
		return util.NewError(util.ErrHistory, "session.AppendExchange", err)
	}
	if err := s.client.RPush(ctx, historyKey(sessionID), string(q), string(a)).Err(); err != nil {
		return util.Errorf(util.ErrHistory, "session.AppendExchange", "append %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	raw, err := s.client.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, util.Errorf(util.ErrHistory, "session.History", "read %s: %w", sessionID, err)
	}
	out := make([]models.ChatTurn, 0, len(raw))
	for _, item := range raw {
		var turn models.ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, util.Errorf(util.ErrHistory, "session.History", "decode turn of %s: %w", sessionID, err)
		}
		out = append(out, turn)
	}
	return out, nil
}

func (s *RedisStore) Drop(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, historyKey(sessionID), seqKey(sessionID)).Err(); err != nil {
		return util.Errorf(util.ErrHistory, "session.Drop", "drop %s: %w", sessionID, err)
	}
	return nil
}
