package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tokoserba/backend/internal/domain"
	"tokoserba/backend/internal/store"
)

// UserStore is the slice of the repository the AuthManager needs for
// account management.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, id string, passwordHash string) error
	CountUsers(ctx context.Context) (int, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
	}
}

// Register creates an account. The very first account becomes an admin so a
// fresh deployment can bootstrap itself; after that, granting the admin role
// requires an authenticated admin caller (allowAdmin).
func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest, allowAdmin bool) (domain.LoginResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if len(name) < 2 {
		return domain.LoginResponse{}, fmt.Errorf("name must be at least 2 characters: %w", store.ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return domain.LoginResponse{}, fmt.Errorf("valid email required: %w", store.ErrInvalidInput)
	}
	if len(req.Password) < 6 {
		return domain.LoginResponse{}, fmt.Errorf("password must be at least 6 characters: %w", store.ErrInvalidInput)
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleStaff
	}
	if role != domain.RoleAdmin && role != domain.RoleStaff {
		return domain.LoginResponse{}, fmt.Errorf("role must be ADMIN or STAFF: %w", store.ErrInvalidInput)
	}

	count, err := a.users.CountUsers(ctx)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if count == 0 {
		role = domain.RoleAdmin
	} else if role == domain.RoleAdmin && !allowAdmin {
		return domain.LoginResponse{}, errors.New("admin role required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("failed to hash password")
	}

	user, err := a.users.CreateUser(ctx, domain.UserAccount{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.LoginResponse{}, fmt.Errorf("user already exists: %w", store.ErrDuplicate)
		}
		return domain.LoginResponse{}, err
	}

	return a.issueToken(*user)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	return a.issueToken(*user)
}

func (a *AuthManager) Me(ctx context.Context, userID string) (domain.AuthUser, error) {
	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return domain.AuthUser{}, err
	}
	return authUser(*user), nil
}

func (a *AuthManager) ChangePassword(ctx context.Context, userID string, req domain.ChangePasswordRequest) error {
	if len(req.NewPassword) < 6 {
		return fmt.Errorf("password must be at least 6 characters: %w", store.ErrInvalidInput)
	}

	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !verifyPassword(user.PasswordHash, req.CurrentPassword) {
		return errors.New("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password")
	}
	return a.users.UpdateUserPassword(ctx, userID, string(hash))
}

func (a *AuthManager) issueToken(user domain.UserAccount) (domain.LoginResponse, error) {
	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.ID, user.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        authUser(user),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(userID, role string, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "tokoserba",
		},
		Role: role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func authUser(user domain.UserAccount) domain.AuthUser {
	return domain.AuthUser{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
