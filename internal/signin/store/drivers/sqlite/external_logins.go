package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

type externalLoginsRepo struct {
	db dbtx
}

func (r *externalLoginsRepo) GetExternalLogin(ctx context.Context, provider, providerID string) (domain.ExternalLogin, error) {
	var l domain.ExternalLogin
	err := r.db.QueryRowContext(ctx, `
		SELECT provider, provider_id, user_id, created_at FROM external_logins
		WHERE provider = ? AND provider_id = ?`, provider, providerID,
	).Scan(&l.Provider, &l.ProviderID, &l.UserID, &l.CreatedAt)
	if err != nil {
		return domain.ExternalLogin{}, mapNotFound(err)
	}
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (r *externalLoginsRepo) CreateExternalLogin(ctx context.Context, l domain.ExternalLogin) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO external_logins (provider, provider_id, user_id, created_at)
		VALUES (?, ?, ?, ?)`, l.Provider, l.ProviderID, l.UserID, time.Now().UTC())
	return mapConflict(err)
}

func (r *externalLoginsRepo) ListUserExternalLogins(ctx context.Context, userID string) ([]domain.ExternalLogin, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT provider, provider_id, user_id, created_at FROM external_logins
		WHERE user_id = ? ORDER BY provider, provider_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExternalLogin
	for rows.Next() {
		var l domain.ExternalLogin
		if err := rows.Scan(&l.Provider, &l.ProviderID, &l.UserID, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
