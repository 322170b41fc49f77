package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

type passwordResetsRepo struct {
	db dbtx
}

const resetColumns = `id, user_id, code_hash, token_hash, attempts, expires_at, verified_at, created_at`

func scanReset(row interface{ Scan(...any) error }) (domain.PasswordReset, error) {
	var (
		pr       domain.PasswordReset
		token    sql.NullString
		verified sql.NullTime
	)
	err := row.Scan(&pr.ID, &pr.UserID, &pr.CodeHash, &token, &pr.Attempts, &pr.ExpiresAt, &verified, &pr.CreatedAt)
	if err != nil {
		return domain.PasswordReset{}, mapNotFound(err)
	}
	pr.TokenHash = mapNullStringPtr(token)
	pr.VerifiedAt = mapNullTimePtr(verified)
	pr.ExpiresAt = pr.ExpiresAt.UTC()
	pr.CreatedAt = pr.CreatedAt.UTC()
	return pr, nil
}

func (r *passwordResetsRepo) CreatePasswordReset(ctx context.Context, pr domain.PasswordReset) error {
	created := pr.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_resets (id, user_id, code_hash, token_hash, attempts, expires_at, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.UserID, pr.CodeHash, mapOptionalString(pr.TokenHash), pr.Attempts,
		pr.ExpiresAt.UTC(), optionalTime(pr.VerifiedAt), created.UTC(),
	)
	return mapConflict(err)
}

func (r *passwordResetsRepo) GetPendingPasswordReset(ctx context.Context, userID string, now time.Time) (domain.PasswordReset, error) {
	return scanReset(r.db.QueryRowContext(ctx, `
		SELECT `+resetColumns+` FROM password_resets
		WHERE user_id = ? AND verified_at IS NULL AND expires_at > ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, userID, now.UTC()))
}

func (r *passwordResetsRepo) GetPasswordResetByTokenHash(ctx context.Context, tokenHash string, now time.Time) (domain.PasswordReset, error) {
	return scanReset(r.db.QueryRowContext(ctx, `
		SELECT `+resetColumns+` FROM password_resets
		WHERE token_hash = ? AND verified_at IS NOT NULL AND expires_at > ?`, tokenHash, now.UTC()))
}

func (r *passwordResetsRepo) IncrementPasswordResetAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE password_resets SET attempts = attempts + 1 WHERE id = ?
		RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *passwordResetsRepo) MarkPasswordResetVerified(ctx context.Context, id, tokenHash string, at time.Time) error {
	return requireRow(r.db.ExecContext(ctx, `
		UPDATE password_resets SET token_hash = ?, verified_at = ?
		WHERE id = ? AND verified_at IS NULL`, tokenHash, at.UTC(), id))
}

func (r *passwordResetsRepo) DeleteUserPasswordResets(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = ?`, userID)
	return err
}

func (r *passwordResetsRepo) DeleteExpiredPasswordResets(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func optionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
