package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// emptyList is the default value for a collection that was never written.
const emptyList = "[]"

// KV is the key-value adapter beneath the collection store. Get returns the
// empty-list default for absent keys; Set overwrites the whole value.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// RedisKV persists values in Redis.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV creates a Redis-backed KV adapter.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get retrieves the value stored under key, or the empty-list default.
func (s *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return emptyList, nil
		}
		return "", errors.Wrapf(err, "redis get %s", key)
	}
	if val == "" {
		return emptyList, nil
	}
	return val, nil
}

// Set overwrites the value stored under key.
func (s *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// MemoryKV is the in-process fallback used when Redis is not configured.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV creates an empty in-process KV adapter.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

// Get retrieves the value stored under key, or the empty-list default.
func (s *MemoryKV) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	if !ok || val == "" {
		return emptyList, nil
	}
	return val, nil
}

// Set overwrites the value stored under key.
func (s *MemoryKV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// CollectionStore layers a JSON list-of-objects abstraction on a KV adapter.
// Every collection lives under a single key as one serialized JSON array, so
// each mutation is a full read-modify-write of that blob. A per-collection
// mutex serializes mutations within the process; concurrent writers in other
// processes sharing the same Redis remain last-write-wins.
type CollectionStore struct {
	kv KV

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCollectionStore creates a CollectionStore on top of the given adapter.
func NewCollectionStore(kv KV) *CollectionStore {
	return &CollectionStore{kv: kv, locks: make(map[string]*sync.Mutex)}
}

func (s *CollectionStore) lock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// List returns all items of a collection, in insertion order. A never-written
// collection yields an empty slice.
func (s *CollectionStore) List(ctx context.Context, name string) ([]Item, error) {
	blob, err := s.kv.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	items := []Item{}
	if err := json.Unmarshal([]byte(blob), &items); err != nil {
		return nil, errors.Wrapf(err, "collection %s: corrupt blob", name)
	}
	return items, nil
}

// Append stores item at the end of the collection and returns it unchanged.
func (s *CollectionStore) Append(ctx context.Context, name string, item Item) (Item, error) {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	items, err := s.List(ctx, name)
	if err != nil {
		return nil, err
	}
	items = append(items, item)
	if err := s.save(ctx, name, items); err != nil {
		return nil, err
	}
	return item, nil
}

// FindByID linearly scans the collection for an item whose "id" field equals
// id. Returns ErrNotFound when no item matches.
func (s *CollectionStore) FindByID(ctx context.Context, name, id string) (Item, error) {
	items, err := s.List(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if gjson.GetBytes(item, "id").String() == id {
			return item, nil
		}
	}
	return nil, ErrNotFound
}

// RemoveByID filters out every item whose "id" field equals id and stores the
// remainder. Removing an unknown id is a silent no-op.
func (s *CollectionStore) RemoveByID(ctx context.Context, name, id string) error {
	l := s.lock(name)
	l.Lock()
	defer l.Unlock()

	items, err := s.List(ctx, name)
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if gjson.GetBytes(item, "id").String() != id {
			kept = append(kept, item)
		}
	}
	return s.save(ctx, name, kept)
}

func (s *CollectionStore) save(ctx context.Context, name string, items []Item) error {
	blob, err := json.Marshal(items)
	if err != nil {
		return errors.Wrapf(err, "collection %s: marshal", name)
	}
	return s.kv.Set(ctx, name, string(blob))
}
