package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"uniai-studio/internal/domain"
	"uniai-studio/internal/domain/ports/repository"
)

var _ repository.SettingRepository = (*settingRepo)(nil)

type settingRepo struct {
	pool *pgxpool.Pool
}

func NewSettingRepo(pool *pgxpool.Pool) *settingRepo {
	return &settingRepo{pool: pool}
}

func (r *settingRepo) Get(ctx context.Context, tx repository.Tx, key string) (string, error) {
	const q = `SELECT setting_value FROM settings WHERE setting_key = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return "", translate("setting_get", err)
	}
	var v string
	if err := row.Scan(&v); err != nil {
		return "", translate("setting_get", err)
	}
	return v, nil
}

func (r *settingRepo) GetMany(ctx context.Context, tx repository.Tx, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	const q = `SELECT setting_key, setting_value FROM settings WHERE setting_key = ANY($1);`
	rows, err := queryRows(ctx, r.pool, tx, q, keys)
	if err != nil {
		return nil, translate("setting_get_many", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[k] = v
	}
	if rows.Err() != nil {
		return nil, translate("setting_get_many", rows.Err())
	}
	return out, nil
}

func (r *settingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	const q = `
INSERT INTO settings (setting_key, setting_value, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (setting_key) DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, key, value)
	return translate("setting_set", err)
}
