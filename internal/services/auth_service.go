package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	InsertUser(ctx context.Context, u *User) error
	ListUsersByRole(ctx context.Context, role Role) ([]*User, error)
}

type TokenSigner func(uid, username string, role Role, ttl time.Duration) (string, error)

type AuthService struct {
	store       UserStore
	now         func() time.Time
	idGenerator func() string
	signToken   TokenSigner
	tokenTTL    time.Duration
}

type AuthResult struct {
	Token string `json:"access_token"`
	Type  string `json:"token_type"`
	User  *User  `json:"user"`
}

type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

func NewAuthService(store UserStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthService{
		store:       store,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: newID,
		signToken:   signer,
		tokenTTL:    ttl,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if n := len(username); n < 3 || n > 50 {
		return nil, NewInvalidError("username must be 3-50 characters")
	}
	if len(in.Password) < 6 {
		return nil, NewInvalidError("password must be at least 6 characters")
	}
	role := in.Role
	if role == "" {
		role = RoleRater
	}
	if !role.Valid() {
		return nil, invalidf("unknown role %q", in.Role)
	}
	existing, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("username already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           s.idGenerator(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	}
	if err := s.store.InsertUser(ctx, u); err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, NewInvalidError("username/password required")
	}
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return s.issue(u)
}

func (s *AuthService) issue(u *User) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Username, u.Role, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Type: "bearer", User: u}, nil
}

// Me resolves the principal back to its stored user.
func (s *AuthService) Me(ctx context.Context, who Principal) (*User, error) {
	u, err := s.store.GetUser(ctx, who.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("user no longer exists")
	}
	return u, nil
}

// ListRaters lets requesters pick raters to assign.
func (s *AuthService) ListRaters(ctx context.Context, who Principal) ([]UserBasic, error) {
	if who.Role != RoleRequester {
		return nil, NewForbiddenError("requester role required")
	}
	users, err := s.store.ListUsersByRole(ctx, RoleRater)
	if err != nil {
		return nil, err
	}
	out := make([]UserBasic, 0, len(users))
	for _, u := range users {
		out = append(out, UserBasic{ID: u.ID, Username: u.Username})
	}
	return out, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
