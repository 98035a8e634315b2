//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Package account is the authentication collaborator of the relay: it keeps
// username/password accounts, checks logins and lists the known usernames.
// The relay itself never looks at passwords.
package account

import "time"

// Account is a stored user.
type Account struct {
	Username     string    `cbor:"username"`
	PasswordHash string    `cbor:"password_hash"`
	CreatedAt    time.Time `cbor:"created_at"`
}

// Store persists accounts.
type Store interface {
	// Create stores a new account, failing with ErrUserExists if the
	// username is taken.
	Create(a Account) error
	// Get returns the account for username or ErrUserNotFound.
	Get(username string) (Account, error)
	// Usernames lists every stored username in lexical order.
	Usernames() ([]string, error)
	Close() error
}
