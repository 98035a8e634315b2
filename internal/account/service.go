package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Credentials is the body of register and login requests.
type Credentials struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// Service implements account registration, login and the user directory.
type Service struct {
	store    Store
	tokens   *TokenIssuer
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewService returns a Service backed by store. tokens signs login tokens.
func NewService(store Store, tokens *TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		validate: validator.New(),
		log:      logger,
		now:      time.Now,
	}
}

func (s *Service) check(c Credentials) (Credentials, error) {
	c.Username = strings.TrimSpace(c.Username)
	if err := s.validate.Struct(c); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return c, nil
}

// Register creates an account.
func (s *Service) Register(c Credentials) error {
	c, err := s.check(c)
	if err != nil {
		return err
	}

	hash, err := HashPassword(c.Password)
	if err != nil {
		return err
	}

	if err := s.store.Create(Account{
		Username:     c.Username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}); err != nil {
		return err
	}

	s.log.Info().Str("username", c.Username).Msg("account registered")
	return nil
}

// Login checks the credentials and returns a token for the user.
func (s *Service) Login(c Credentials) (string, error) {
	c, err := s.check(c)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	a, err := s.store.Get(c.Username)
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	ok, err := ComparePassword(c.Password, a.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("check password for %q: %w", c.Username, err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	return s.tokens.Issue(a.Username)
}

// Usernames lists every registered username.
func (s *Service) Usernames() ([]string, error) {
	return s.store.Usernames()
}
