package store

import (
	"context"
	"fmt"
	"sync"
)

// Fixed keys the credentials are stored under.
const (
	KeyCardNumber = "bf_card_number"
	KeyDeviceId   = "bf_device_id"
	KeyConstant   = "bf_constant"
)

// KVStore is durable string storage. Get reports ok=false for missing keys.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type Config struct {
	Driver      string
	SQLitePath  string
	PostgresURL string
	MongoURI    string
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (KVStore, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.PostgresURL)
	case DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Close() error { return nil }
