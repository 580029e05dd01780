package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"mailroom_server/core/domain"
	"mailroom_server/core/port/out"
	"mailroom_server/pkg/apperr"
)

// SettingsRepository implements out.SettingsRepository.
type SettingsRepository struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) out.SettingsRepository {
	return &SettingsRepository{db: db}
}

type settingsRow struct {
	TenantID        uuid.UUID `db:"tenant_id"`
	Host            string    `db:"host"`
	Port            int       `db:"port"`
	Address         string    `db:"address"`
	EncryptedSecret string    `db:"encrypted_secret"`
	Folder          string    `db:"folder"`
	Enabled         bool      `db:"enabled"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r settingsRow) toDomain() *domain.MailboxSettings {
	return &domain.MailboxSettings{
		TenantID:        r.TenantID,
		Host:            r.Host,
		Port:            r.Port,
		Address:         r.Address,
		EncryptedSecret: r.EncryptedSecret,
		Folder:          r.Folder,
		Enabled:         r.Enabled,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

const settingsColumns = `
	tenant_id, host, port, address, encrypted_secret, folder, enabled,
	created_at, updated_at`

func (r *SettingsRepository) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.MailboxSettings, error) {
	query := `SELECT` + settingsColumns + `
		FROM tenant_mailbox_settings WHERE tenant_id = $1`

	var row settingsRow
	if err := r.db.GetContext(ctx, &row, query, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("mailbox settings")
		}
		return nil, apperr.DatabaseError("get mailbox settings", err)
	}
	return row.toDomain(), nil
}

func (r *SettingsRepository) Upsert(ctx context.Context, settings *domain.MailboxSettings) error {
	query := `
		INSERT INTO tenant_mailbox_settings (
			tenant_id, host, port, address, encrypted_secret, folder,
			enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			host = EXCLUDED.host,
			port = EXCLUDED.port,
			address = EXCLUDED.address,
			encrypted_secret = EXCLUDED.encrypted_secret,
			folder = EXCLUDED.folder,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		settings.TenantID, settings.Host, settings.Port, settings.Address,
		settings.EncryptedSecret, settings.Folder, settings.Enabled,
	)
	if err != nil {
		return apperr.DatabaseError("upsert mailbox settings", err)
	}
	return nil
}

func (r *SettingsRepository) ListEnabled(ctx context.Context) ([]*domain.MailboxSettings, error) {
	query := `SELECT` + settingsColumns + `
		FROM tenant_mailbox_settings WHERE enabled = TRUE`

	var rows []settingsRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, apperr.DatabaseError("list enabled mailboxes", err)
	}

	settings := make([]*domain.MailboxSettings, len(rows))
	for i, row := range rows {
		settings[i] = row.toDomain()
	}
	return settings, nil
}
