package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/convomesh/convomesh/core"
)

// RedisStore persists sessions and transcripts in Redis. Sessions are stored
// as JSON snapshots under one key per session; history events live in a Redis
// list keyed by session id. Suitable for deployments where turns for one
// session may land on different processes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisOptions configure the Redis store.
type RedisOptions struct {
	// KeyPrefix namespaces all keys, default "convomesh:".
	KeyPrefix string
}

// NewRedisStore wraps an existing client. The connection is verified with a
// ping so misconfiguration surfaces at startup, not mid-turn.
func NewRedisStore(ctx context.Context, client *redis.Client, optFns ...func(o *RedisOptions)) (*RedisStore, error) {
	opts := RedisOptions{KeyPrefix: "convomesh:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client, keyPrefix: opts.KeyPrefix}, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) sessionKey(id string) string { return s.keyPrefix + "session:" + id }
func (s *RedisStore) eventsKey(id string) string  { return s.keyPrefix + "events:" + id }

// Create allocates and persists a fresh session, overwriting any existing one.
func (s *RedisStore) Create(ctx context.Context, id string) (*core.Session, error) {
	sess := core.NewSession(id)
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns an existing session or core.ErrSessionNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*core.Session, error) {
	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var sess core.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save persists a full session snapshot, last write wins.
func (s *RedisStore) Save(ctx context.Context, session *core.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	if err := s.client.Set(ctx, s.sessionKey(session.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// ApplyDataDelta merges collected-field values into the stored session via a
// read-modify-write of the snapshot.
func (s *RedisStore) ApplyDataDelta(ctx context.Context, id string, delta map[string]any) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.MergeData(delta)
	return s.Save(ctx, sess)
}

// UpdateRouteStep updates the stored route/step position.
func (s *RedisStore) UpdateRouteStep(ctx context.Context, id string, route *core.RouteRef, step *core.StepRef) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.CurrentRoute = route
	sess.CurrentStep = step
	return s.Save(ctx, sess)
}

// IncrementMessageCount bumps the stored message counter.
func (s *RedisStore) IncrementMessageCount(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.MessageCount++
	return s.Save(ctx, sess)
}

// Delete removes the session and its history.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	if deleted == 0 {
		return core.ErrSessionNotFound
	}
	return s.client.Del(ctx, s.eventsKey(id)).Err()
}

// Append adds an event to the session's history list.
func (s *RedisStore) Append(ctx context.Context, sessionID string, event core.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.RPush(ctx, s.eventsKey(sessionID), raw).Err(); err != nil {
		return fmt.Errorf("redis append event: %w", err)
	}
	return nil
}

// List returns the session's history in append order.
func (s *RedisStore) List(ctx context.Context, sessionID string) ([]core.Event, error) {
	raws, err := s.client.LRange(ctx, s.eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list events: %w", err)
	}
	events := make([]core.Event, 0, len(raws))
	for _, raw := range raws {
		var ev core.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// DeleteBySession removes all history for the session.
func (s *RedisStore) DeleteBySession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.eventsKey(sessionID)).Err()
}
