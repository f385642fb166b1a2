package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "perplexica:chat:"

// RedisStore keeps each chat as a JSON value, its messages in a list, and a
// sorted set of chat ids scored by creation time.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store whose keys expire after ttl. Zero ttl keeps
// chats forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) chatKey(id string) string     { return s.prefix + id }
func (s *RedisStore) messagesKey(id string) string { return s.prefix + id + ":messages" }
func (s *RedisStore) idsKey(id string) string      { return s.prefix + id + ":message_ids" }
func (s *RedisStore) indexKey() string             { return s.prefix + "index" }

func (s *RedisStore) CreateChat(ctx context.Context, c Chat) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Files == nil {
		c.Files = []string{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.chatKey(c.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create chat %s: %w", c.ID, err)
	}
	if !created {
		return nil
	}

	err = s.client.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(c.CreatedAt.UnixNano()),
		Member: c.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index chat %s: %w", c.ID, err)
	}
	return nil
}

func (s *RedisStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	data, err := s.client.Get(ctx, s.chatKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat %s: %w", id, err)
	}

	var c Chat
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", id, err)
	}
	return &c, nil
}

// ListChats drops index entries whose chat has expired.
func (s *RedisStore) ListChats(ctx context.Context) ([]Chat, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]Chat, 0, len(ids))
	var stale []any
	for _, id := range ids {
		c, err := s.GetChat(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}

	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune chat index: %w", err)
		}
	}
	return chats, nil
}

func (s *RedisStore) DeleteChat(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.chatKey(id))
	pipe.Del(ctx, s.messagesKey(id), s.idsKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) AddMessage(ctx context.Context, msg Message) error {
	if msg.Metadata.CreatedAt.IsZero() {
		msg.Metadata.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.messagesKey(msg.ChatID), data)
	pipe.SAdd(ctx, s.idsKey(msg.ChatID), msg.MessageID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.messagesKey(msg.ChatID), s.ttl)
		pipe.Expire(ctx, s.idsKey(msg.ChatID), s.ttl)
		pipe.Expire(ctx, s.chatKey(msg.ChatID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add message to chat %s: %w", msg.ChatID, err)
	}
	return nil
}

func (s *RedisStore) MessageExists(ctx context.Context, chatID, messageID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.idsKey(chatID), messageID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check message %s: %w", messageID, err)
	}
	return ok, nil
}

func (s *RedisStore) GetMessages(ctx context.Context, chatID string) ([]Message, error) {
	raw, err := s.client.LRange(ctx, s.messagesKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read messages for chat %s: %w", chatID, err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}
