// Package auth is the boundary to user authentication. Session storage lives
// outside this service; only the token lookup contract is used here.
package auth

import (
	"context"
	"errors"

	"proof-leaderboard/config"
)

// ErrUnauthorized is returned for a missing or unknown token
var ErrUnauthorized = errors.New("invalid auth token")

// User is the authenticated subject of a request
type User struct {
	Username string
}

// Authenticator resolves an auth token to its user
type Authenticator interface {
	UserByToken(ctx context.Context, token string) (*User, error)
}

// StaticAuthenticator serves a fixed token table, for development and
// single-operator deployments.
type StaticAuthenticator struct {
	users map[string]string
}

func NewStaticAuthenticator(users []config.AuthUser) *StaticAuthenticator {
	m := make(map[string]string, len(users))
	for _, u := range users {
		m[u.Token] = u.Username
	}
	return &StaticAuthenticator{users: m}
}

func (a *StaticAuthenticator) UserByToken(_ context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	username, ok := a.users[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &User{Username: username}, nil
}
