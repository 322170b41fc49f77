// Package clients adapts the persistent client table to the lookups the
// sign-in flows make.
package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/internal/signin/service"
	"github.com/aussiebroadwan/signin/internal/signin/store"
)

// Store implements service.ClientStore.
type Store struct {
	Clients store.Clients
}

var _ service.ClientStore = (*Store)(nil)

func (s *Store) FindClientByID(ctx context.Context, clientID string) (*domain.Client, error) {
	if clientID == "" {
		return nil, nil
	}
	c, err := s.Clients.GetClientByID(ctx, clientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup client %s: %w", clientID, err)
	}
	return &c, nil
}

// IsValidIdentityProvider is false for unknown clients.
func (s *Store) IsValidIdentityProvider(ctx context.Context, clientID, provider string) (bool, error) {
	c, err := s.FindClientByID(ctx, clientID)
	if err != nil || c == nil {
		return false, err
	}
	return c.AllowsProvider(provider), nil
}

func (s *Store) GetIdentityProviderRestrictions(ctx context.Context, clientID string) ([]string, error) {
	c, err := s.FindClientByID(ctx, clientID)
	if err != nil || c == nil {
		return nil, err
	}
	return c.IdentityProviderRestrictions, nil
}
