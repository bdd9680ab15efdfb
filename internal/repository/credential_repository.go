package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/arena-booking-api/internal/models"
	appErrors "github.com/noah-isme/arena-booking-api/pkg/errors"
	"github.com/noah-isme/arena-booking-api/pkg/secure"
)

type sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

func sealCredential(s sealer, credential models.CalendarCredential) ([]byte, error) {
	raw, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	return s.Seal(raw)
}

func openCredential(s sealer, sealed []byte) (*models.CalendarCredential, error) {
	raw, err := s.Open(sealed)
	if err != nil {
		return nil, err
	}
	var credential models.CalendarCredential
	if err := json.Unmarshal(raw, &credential); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &credential, nil
}

// unreadable reports a stored credential that no longer opens, e.g. after the secret rotated.
// It is treated as absent so the student simply connects again.
func unreadable(err error) error {
	if errors.Is(err, secure.ErrOpen) {
		return appErrors.Clone(appErrors.ErrNotFound, "stored calendar credential is unreadable")
	}
	return err
}

// MemoryCredentialStore keeps sealed credentials in process memory.
type MemoryCredentialStore struct {
	sealer sealer
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryCredentialStore constructs an in-memory store.
func NewMemoryCredentialStore(s sealer) *MemoryCredentialStore {
	return &MemoryCredentialStore{sealer: s, values: make(map[string][]byte)}
}

// Get returns the stored credential or ErrNotFound.
func (m *MemoryCredentialStore) Get(ctx context.Context, key string) (*models.CalendarCredential, error) {
	m.mu.RLock()
	sealed, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return nil, appErrors.ErrNotFound
	}
	credential, err := openCredential(m.sealer, sealed)
	if err != nil {
		return nil, unreadable(err)
	}
	return credential, nil
}

// Set stores the credential.
func (m *MemoryCredentialStore) Set(ctx context.Context, key string, credential models.CalendarCredential) error {
	sealed, err := sealCredential(m.sealer, credential)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = sealed
	m.mu.Unlock()
	return nil
}

// Clear removes the credential.
func (m *MemoryCredentialStore) Clear(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// RedisCredentialStore keeps sealed credentials in Redis.
type RedisCredentialStore struct {
	client *redis.Client
	sealer sealer
	prefix string
	ttl    time.Duration
}

// NewRedisCredentialStore constructs a Redis store. A zero ttl keeps credentials until cleared.
func NewRedisCredentialStore(client *redis.Client, s sealer, prefix string, ttl time.Duration) *RedisCredentialStore {
	if prefix == "" {
		prefix = "arena:calendar:credential:"
	}
	return &RedisCredentialStore{client: client, sealer: s, prefix: prefix, ttl: ttl}
}

// Get returns the stored credential or ErrNotFound.
func (r *RedisCredentialStore) Get(ctx context.Context, key string) (*models.CalendarCredential, error) {
	sealed, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("redis get credential: %w", err)
	}
	credential, err := openCredential(r.sealer, sealed)
	if err != nil {
		return nil, unreadable(err)
	}
	return credential, nil
}

// Set stores the credential.
func (r *RedisCredentialStore) Set(ctx context.Context, key string, credential models.CalendarCredential) error {
	sealed, err := sealCredential(r.sealer, credential)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, sealed, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set credential: %w", err)
	}
	return nil
}

// Clear removes the credential.
func (r *RedisCredentialStore) Clear(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete credential: %w", err)
	}
	return nil
}

// PostgresCredentialStore keeps sealed credentials in the calendar_credentials table.
type PostgresCredentialStore struct {
	db      *sqlx.DB
	sealer  sealer
	metrics queryObserver
	now     func() time.Time
}

// NewPostgresCredentialStore constructs a SQL store. metrics may be nil.
func NewPostgresCredentialStore(db *sqlx.DB, s sealer, metrics queryObserver) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db, sealer: s, metrics: metrics, now: time.Now}
}

const credentialSchema = `CREATE TABLE IF NOT EXISTS calendar_credentials (
	student_id TEXT PRIMARY KEY,
	payload BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the credential table when missing.
func (p *PostgresCredentialStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, credentialSchema); err != nil {
		return fmt.Errorf("create calendar_credentials: %w", err)
	}
	return nil
}

// Get returns the stored credential or ErrNotFound.
func (p *PostgresCredentialStore) Get(ctx context.Context, key string) (*models.CalendarCredential, error) {
	const query = `SELECT payload FROM calendar_credentials WHERE student_id = $1`
	defer p.observe("credential_get", time.Now())

	var sealed []byte
	if err := p.db.GetContext(ctx, &sealed, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	credential, err := openCredential(p.sealer, sealed)
	if err != nil {
		return nil, unreadable(err)
	}
	return credential, nil
}

// Set upserts the credential.
func (p *PostgresCredentialStore) Set(ctx context.Context, key string, credential models.CalendarCredential) error {
	const query = `INSERT INTO calendar_credentials (student_id, payload, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (student_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	defer p.observe("credential_set", time.Now())

	sealed, err := sealCredential(p.sealer, credential)
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, query, key, sealed, p.now().UTC()); err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

// Clear removes the credential.
func (p *PostgresCredentialStore) Clear(ctx context.Context, key string) error {
	const query = `DELETE FROM calendar_credentials WHERE student_id = $1`
	defer p.observe("credential_clear", time.Now())

	if _, err := p.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (p *PostgresCredentialStore) observe(label string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveDBQuery(label, time.Since(start))
	}
}
