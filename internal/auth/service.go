// Package auth handles account creation and credential login. Passwords
// are stored as bcrypt hashes; a successful login issues a signed token
// whose jti is registered in the server-side session store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ifinance/relay/internal/domain"
	"github.com/ifinance/relay/internal/observability"
)

const (
	bcryptCost = 12

	defaultPlan        = "FREE"
	defaultTokensLimit = 10000
)

// ErrInvalidCredentials is returned for an unknown email or a wrong
// password; callers must not be able to tell the two apart.
var ErrInvalidCredentials = errors.New("invalid email or password")

// SignupInput carries the fields accepted at account creation.
type SignupInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	CompanyName string `json:"companyName"`
}

// Service implements signup and login.
type Service struct {
	users      domain.UserStore
	sessions   domain.SessionStore
	issuer     *TokenIssuer
	sessionTTL time.Duration
}

// NewService creates a new auth service (DI constructor).
func NewService(
	users domain.UserStore,
	sessions domain.SessionStore,
	issuer *TokenIssuer,
	sessionTTL time.Duration,
) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		issuer:     issuer,
		sessionTTL: sessionTTL,
	}
}

// Signup creates a new account on the free plan.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	if in.Email == "" || in.Password == "" || in.FirstName == "" {
		return nil, domain.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CompanyName:  in.CompanyName,
		Name:         joinName(in.FirstName, in.LastName),
		Plan:         defaultPlan,
		TokensLimit:  defaultTokensLimit,
		CreatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("user created",
		observability.String("user_id", user.ID),
	)

	return user, nil
}

// Login verifies credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	sessionID := uuid.New().String()
	token, err := s.issuer.Issue(user.ID, sessionID)
	if err != nil {
		return "", nil, err
	}

	if err := s.sessions.Put(ctx, sessionID, user.ID, s.sessionTTL); err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// Authenticate resolves a bearer token to a user id: the signature must
// verify and the session must still exist server-side.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return "", domain.ErrUnauthenticated
	}

	userID, err := s.sessions.Get(ctx, claims.ID)
	if err != nil || userID != claims.UserID {
		return "", domain.ErrUnauthenticated
	}

	return userID, nil
}

func joinName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}
