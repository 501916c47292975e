package sink

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/db"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
	rediswrap "github.com/bogdan-lmk/discord-telegram-bridge/internal/redis"
)

// Store persists the sink's topic/message blob across restarts. Three
// backends are supported, selected by config.PersistenceBackend. A
// TTL-based KV expiry is a poor fit for data meant to be durable, so a
// Postgres backend is offered as the no-TTL alternative.
type Store interface {
	Load(ctx context.Context) (models.Blob, error)
	Save(ctx context.Context, blob models.Blob) error
}

// FileStore persists the blob as a single JSON file on local disk. This is
// the default backend, requiring no external service before Redis/Postgres
// are configured.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(ctx context.Context) (models.Blob, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewBlob(), nil
		}
		return models.Blob{}, err
	}
	if len(data) == 0 {
		return models.NewBlob(), nil
	}
	return models.UnmarshalBlob(data)
}

func (f *FileStore) Save(ctx context.Context, blob models.Blob) error {
	data, err := blob.Marshal()
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// RedisStore persists the blob as a single key (with no expiry when ttl is
// zero) using the pooled
// redis.Client wrapper's Get/Set, whose String-valued API already fits a
// JSON blob.
type RedisStore struct {
	client *rediswrap.Client
	key    string
	ttl    time.Duration
}

func NewRedisStore(client *rediswrap.Client, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (r *RedisStore) Load(ctx context.Context) (models.Blob, error) {
	val, err := r.client.Get(ctx, r.key)
	if err != nil {
		return models.NewBlob(), nil
	}
	if val == "" {
		return models.NewBlob(), nil
	}
	return models.UnmarshalBlob([]byte(val))
}

func (r *RedisStore) Save(ctx context.Context, blob models.Blob) error {
	data, err := blob.Marshal()
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, string(data), r.ttl)
}

// PostgresStore persists the blob as a single row in a durable table with
// no expiry, for operators who'd rather not rely on a TTL-based key
// surviving indefinitely.
type PostgresStore struct {
	db   *db.DB
	name string
}

func NewPostgresStore(database *db.DB, name string) *PostgresStore {
	return &PostgresStore{db: database, name: name}
}

// EnsureSchema creates the backing table if it doesn't already exist. Call
// once at startup before Load/Save.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sink_blobs (
			name TEXT PRIMARY KEY,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("sink: ensuring sink_blobs schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context) (models.Blob, error) {
	var data []byte
	err := p.db.Pool.QueryRow(ctx, `SELECT data FROM sink_blobs WHERE name = $1`, p.name).Scan(&data)
	if err != nil {
		return models.NewBlob(), nil
	}
	return models.UnmarshalBlob(data)
}

func (p *PostgresStore) Save(ctx context.Context, blob models.Blob) error {
	data, err := blob.Marshal()
	if err != nil {
		return err
	}
	_, err = p.db.Pool.Exec(ctx, `
		INSERT INTO sink_blobs (name, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		p.name, data)
	return err
}
