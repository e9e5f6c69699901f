// Package credentials keeps portal passwords in the OS keyring.
package credentials

import (
	"errors"

	"github.com/zalando/go-keyring"
)

var ErrNotFound = errors.New("no password stored for this account")

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
)

// Store is scoped to one portal host; each user is a keyring entry under it.
type Store struct {
	Service string
}

func NewStore(hostname string) *Store {
	return &Store{Service: "appframe:" + hostname}
}

func (s *Store) Set(username, password string) error {
	if username == "" {
		return errors.New("username is required")
	}
	return keyringSet(s.Service, username, password)
}

func (s *Store) Get(username string) (string, error) {
	password, err := keyringGet(s.Service, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return password, err
}

func (s *Store) Delete(username string) error {
	err := keyringDelete(s.Service, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
