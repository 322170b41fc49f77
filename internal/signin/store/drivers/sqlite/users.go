package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, display_name, email, password_hash, totp_secret,
	force_password_change, last_login_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u         domain.User
		totp      sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.PasswordHash, &totp,
		&u.ForcePasswordChange, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.TOTPSecret = mapNullStringPtr(totp)
	u.LastLoginAt = mapNullTimePtr(lastLogin)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, email, password_hash, totp_secret,
			force_password_change, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, u.Email, u.PasswordHash, mapOptionalString(u.TOTPSecret),
		u.ForcePasswordChange, now, now,
	)
	return mapConflict(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return requireRow(r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, force_password_change = 0, updated_at = ?
		WHERE id = ?`, hash, time.Now().UTC(), userID))
}

func (r *usersRepo) SetForcePasswordChange(ctx context.Context, userID string, force bool) error {
	return requireRow(r.db.ExecContext(ctx, `
		UPDATE users SET force_password_change = ?, updated_at = ? WHERE id = ?`,
		force, time.Now().UTC(), userID))
}

func (r *usersRepo) UpdateTOTPSecret(ctx context.Context, userID string, secret *string) error {
	return requireRow(r.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = ?, updated_at = ? WHERE id = ?`,
		mapOptionalString(secret), time.Now().UTC(), userID))
}

func (r *usersRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return requireRow(r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), userID))
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
