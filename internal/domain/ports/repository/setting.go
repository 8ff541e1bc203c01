package repository

import "context"

type SettingRepository interface {
	// Get returns domain.ErrNotFound for a missing key.
	Get(ctx context.Context, tx Tx, key string) (string, error)
	// GetMany returns only the keys that exist.
	GetMany(ctx context.Context, tx Tx, keys []string) (map[string]string, error)
	Set(ctx context.Context, tx Tx, key, value string) error
}
