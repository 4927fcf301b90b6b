package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// Entry is one row of the device-style key-value store: an opaque blob
// under a single key, read and written whole.
type Entry struct {
	bun.BaseModel `bun:"table:storage"`

	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value"`
	UpdatedAt time.Time `bun:"updated_at"`
}

type KV struct {
	Bun *bun.DB
}

func NewKV(db *bun.DB) *KV {
	return &KV{Bun: db}
}

// Init creates the storage table. Called once at startup.
func (s *KV) Init(ctx context.Context) error {
	_, err := s.Bun.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Get returns the blob under key, or nil when the key is absent.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	err := s.Bun.NewSelect().
		Model(&entry).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Set stores the blob under key, replacing any previous value.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	entry := Entry{Key: key, Value: value, UpdatedAt: time.Now()}
	_, err := s.Bun.NewInsert().
		Model(&entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete removes the key. Deleting a missing key is not an error.
func (s *KV) Delete(ctx context.Context, key string) error {
	_, err := s.Bun.NewDelete().
		Model((*Entry)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	return err
}
