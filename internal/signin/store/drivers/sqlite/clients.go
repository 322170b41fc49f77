package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, name, uri, logo_uri, enable_local_login, allow_remember_me,
	require_sign_out_prompt, idp_restrictions, redirect_uris, post_logout_redirect_uris,
	created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (domain.Client, error) {
	var (
		c                                domain.Client
		restrictions, redirects, logouts string
	)
	err := row.Scan(&c.ID, &c.Name, &c.URI, &c.LogoURI, &c.EnableLocalLogin, &c.AllowRememberMe,
		&c.RequireSignOutPrompt, &restrictions, &redirects, &logouts, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	c.IdentityProviderRestrictions = splitFields(restrictions)
	c.RedirectURIs = splitFields(redirects)
	c.PostLogoutRedirectURIs = splitFields(logouts)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, uri, logo_uri, enable_local_login, allow_remember_me,
			require_sign_out_prompt, idp_restrictions, redirect_uris, post_logout_redirect_uris,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.URI, c.LogoURI, c.EnableLocalLogin, c.AllowRememberMe,
		c.RequireSignOutPrompt, joinFields(c.IdentityProviderRestrictions),
		joinFields(c.RedirectURIs), joinFields(c.PostLogoutRedirectURIs), now, now,
	)
	return mapConflict(err)
}

func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	return requireRow(r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id))
}
