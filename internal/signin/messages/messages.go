// Package messages stores the sign-in and sign-out requests that a relying
// party hands to the login pages. Messages are keyed by a random id that
// travels in the query string.
package messages

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/signin/internal/signin/domain"
	"github.com/aussiebroadwan/signin/pkg/cryptox"
)

// Kind prefixes cookie names and Redis keys for one message family.
type Kind string

const (
	KindSignIn  Kind = "signin"
	KindSignOut Kind = "signout"
)

// DefaultTTL bounds how long a sign-in may take from start to finish.
const DefaultTTL = 15 * time.Minute

// ErrEmptyID is returned by Write when no id could be assigned.
var ErrEmptyID = errors.New("messages: empty id")

// Store reads, writes and clears messages of one type. Read returns nil and
// no error for an unknown, expired or tampered id.
type Store[T any] interface {
	Read(ctx context.Context, id string) (*T, error)
	Write(ctx context.Context, msg T) (string, error)
	Clear(ctx context.Context, id string) error
}

// Source hands out the stores for one HTTP exchange. Cookie stores need the
// request and response, remote stores ignore them.
type Source interface {
	SignIns(w http.ResponseWriter, r *http.Request) Store[domain.SignInRequest]
	SignOuts(w http.ResponseWriter, r *http.Request) Store[domain.SignOutRequest]
}

// envelope is what actually gets sealed or stored.
type envelope[T any] struct {
	Message   T         `json:"m"`
	CreatedAt time.Time `json:"c"`
	ExpiresAt time.Time `json:"e"`
}

func newID() (string, error) {
	id, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrEmptyID
	}
	return id, nil
}
