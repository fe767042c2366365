// Package identity resolves "whoever is currently logged in" from the auth
// state persisted next to the cache partitions.
package identity

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang-jwt/jwt/v5"
)

// State is the persisted auth state (~/.tchat/state.toml): the active user
// id and the bearer token for the server boundary.
type State struct {
	UserID   string `toml:"user_id"`
	Token    string `toml:"token"`
	Nickname string `toml:"nickname,omitempty"`
}

// LoadState reads the auth state. A missing file yields a zero state, not an
// error: no identity is a normal condition on a fresh machine.
func LoadState(path string) (*State, error) {
	var st State
	_, err := toml.DecodeFile(path, &st)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveState writes the auth state with owner-only permissions.
func SaveState(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(st)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ClearState removes the persisted auth state. Missing file is not an error.
func ClearState(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Current returns the active user id, or "" when no identity can be
// determined.
func Current(path string) string {
	st, err := LoadState(path)
	if err != nil {
		return ""
	}
	if st.UserID != "" {
		return st.UserID
	}
	// Fall back to the token subject when the id was never recorded.
	return TokenSubject(st.Token)
}

// TokenSubject returns the sub claim of a JWT, or "". The token is parsed
// unverified: the client holds no signing key, and the server re-validates
// on every request anyway.
func TokenSubject(raw string) string {
	if raw == "" {
		return ""
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// TokenExpired reports whether the token carries an exp claim in the past.
// Unparseable tokens count as expired; tokens without exp do not.
func TokenExpired(raw string) bool {
	if raw == "" {
		return true
	}
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
