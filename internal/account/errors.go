package account

import "errors"

var (
	ErrUserExists         = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidRequest     = errors.New("username and password required")
	ErrInvalidHash        = errors.New("invalid password hash format")
)
