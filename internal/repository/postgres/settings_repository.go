package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/genovahq/insurance/internal/domain/settings"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository implements settings.Store on the key/value settings table.
// Load is called on every purchase attempt, so admin changes made between
// retries take effect without a restart.
type SettingsRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool, tx: NewTxManager(pool)}
}

func (r *SettingsRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Load reads all known settings keys. Missing keys come back as zero values;
// Normalize supplies the defaults.
func (r *SettingsRepository) Load(ctx context.Context) (settings.Settings, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT key, value FROM settings WHERE key = ANY($1)`,
		[]string{settings.KeyAPIBase, settings.KeyAPIKey, settings.KeyPurchaseTrigger, settings.KeyMaxRetries},
	)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	var s settings.Settings
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings.Settings{}, fmt.Errorf("scan setting: %w", err)
		}
		switch key {
		case settings.KeyAPIBase:
			s.APIBase = value
		case settings.KeyAPIKey:
			s.APIKeyEncrypted = value
		case settings.KeyPurchaseTrigger:
			s.PurchaseTrigger = settings.Trigger(value)
		case settings.KeyMaxRetries:
			n, err := strconv.Atoi(value)
			if err != nil {
				return settings.Settings{}, fmt.Errorf("parse max_retries %q: %w", value, err)
			}
			s.MaxRetries = n
		}
	}
	if err := rows.Err(); err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	return s.Normalize(), nil
}

// Save upserts all settings keys inside one transaction: a Load racing the
// save sees either the old configuration or the new one, never a mix.
// The API key is expected to arrive already vault-encrypted.
func (r *SettingsRepository) Save(ctx context.Context, s settings.Settings) error {
	s = s.Normalize()
	pairs := map[string]string{
		settings.KeyAPIBase:         s.APIBase,
		settings.KeyAPIKey:          s.APIKeyEncrypted,
		settings.KeyPurchaseTrigger: string(s.PurchaseTrigger),
		settings.KeyMaxRetries:      strconv.Itoa(s.MaxRetries),
	}

	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		for key, value := range pairs {
			_, err := r.db(ctx).Exec(ctx,
				`INSERT INTO settings (key, value) VALUES ($1, $2)
				 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
				key, value,
			)
			if err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		return nil
	})
}
