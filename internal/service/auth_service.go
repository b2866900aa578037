package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"

	minPasswordLength = 8
)

type AuthService struct {
	provider   UserProvider
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type UserProvider interface {
	SaveUser(ctx context.Context, user domains.UserToSave) (domains.User, error)
	GetUserByEmail(ctx context.Context, email string) (domains.User, error)
	GetUserByID(ctx context.Context, id int64) (domains.User, error)
	CountUsersByOrganization(ctx context.Context, organizationID int64) (int, error)
}

func NewAuthService(provider UserProvider, secret string, accessTTL, refreshTTL time.Duration) *AuthService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthService{
		provider:   provider,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Register creates a user. caller is nil for self sign-up. The first account of an
// organization becomes its clinician; admins can only be created by admins.
func (s *AuthService) Register(ctx context.Context, caller *domains.Principal, input domains.UserCreate) (domains.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.FullName = strings.TrimSpace(input.FullName)

	if input.FullName == "" {
		return domains.User{}, validationf("full_name is required")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return domains.User{}, validationf("email is invalid")
	}
	if len(input.Password) < minPasswordLength {
		return domains.User{}, validationf("password must be at least %d characters", minPasswordLength)
	}

	role, err := s.resolveRole(ctx, caller, input)
	if err != nil {
		return domains.User{}, err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domains.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.provider.SaveUser(ctx, domains.UserToSave{
		FullName:       input.FullName,
		Email:          input.Email,
		PassHash:       string(passHash),
		Role:           role,
		OrganizationID: input.OrganizationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return domains.User{}, ErrEmailTaken
		case errors.Is(err, storage.ErrReferenceMissing):
			return domains.User{}, validationf("organization %d does not exist", *input.OrganizationID)
		default:
			slog.Error("save user failed", "err", err, "email", input.Email)
			return domains.User{}, err
		}
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *AuthService) resolveRole(ctx context.Context, caller *domains.Principal, input domains.UserCreate) (string, error) {
	if caller != nil && !caller.IsAdmin() && input.OrganizationID != nil && !caller.InOrganization(*input.OrganizationID) {
		return "", ErrForbidden
	}

	firstInOrganization := false
	if input.OrganizationID != nil {
		count, err := s.provider.CountUsersByOrganization(ctx, *input.OrganizationID)
		if err != nil {
			return "", fmt.Errorf("count organization users: %w", err)
		}
		firstInOrganization = count == 0
	}

	switch input.Role {
	case "":
		if firstInOrganization {
			return domains.RoleClinician, nil
		}
		return domains.RoleRespondent, nil
	case domains.RoleRespondent:
		return domains.RoleRespondent, nil
	case domains.RoleClinician:
		if input.OrganizationID == nil {
			return "", validationf("clinicians must belong to an organization")
		}
		if firstInOrganization || (caller != nil && caller.CanManage()) {
			return domains.RoleClinician, nil
		}
		return "", ErrForbidden
	case domains.RoleAdmin:
		if caller != nil && caller.IsAdmin() {
			return domains.RoleAdmin, nil
		}
		return "", ErrForbidden
	default:
		return "", validationf("unknown role %q", input.Role)
	}
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (domains.TokenPair, domains.User, error) {
	user, err := s.provider.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domains.TokenPair{}, domains.User{}, ErrPasswordIncorrect
		}
		slog.Error("fetch user failed", "err", err)
		return domains.TokenPair{}, domains.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)); err != nil {
		return domains.TokenPair{}, domains.User{}, ErrPasswordIncorrect
	}
	if user.DisabledAt != nil {
		return domains.TokenPair{}, domains.User{}, ErrUserDisabled
	}

	pair, err := s.GenerateTokens(user)
	if err != nil {
		slog.Error("generate tokens failed", "err", err, "user_id", user.ID)
		return domains.TokenPair{}, domains.User{}, err
	}
	return pair, user, nil
}

func (s *AuthService) GenerateTokens(user domains.User) (domains.TokenPair, error) {
	now := s.now()

	accessToken, err := s.sign(user, tokenTypeAccess, now.Add(s.accessTTL), now)
	if err != nil {
		return domains.TokenPair{}, err
	}
	refreshToken, err := s.sign(user, tokenTypeRefresh, now.Add(s.refreshTTL), now)
	if err != nil {
		return domains.TokenPair{}, err
	}

	return domains.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *AuthService) sign(user domains.User, tokenType string, expiresAt, issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(user.ID, 10),
		"role": user.Role,
		"type": tokenType,
		"exp":  expiresAt.Unix(),
		"iat":  issuedAt.Unix(),
	}
	if user.OrganizationID != nil {
		claims["org"] = *user.OrganizationID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domains.TokenPair, error) {
	principal, err := s.parse(refreshToken, tokenTypeRefresh)
	if err != nil {
		return domains.TokenPair{}, err
	}

	user, err := s.provider.GetUserByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domains.TokenPair{}, ErrTokenIncorrect
		}
		return domains.TokenPair{}, err
	}
	if user.DisabledAt != nil {
		return domains.TokenPair{}, ErrUserDisabled
	}

	return s.GenerateTokens(user)
}

func (s *AuthService) Me(ctx context.Context, userID int64) (domains.User, error) {
	return s.provider.GetUserByID(ctx, userID)
}

// Authenticate validates an access token and returns the caller it names.
func (s *AuthService) Authenticate(token string) (domains.Principal, error) {
	return s.parse(token, tokenTypeAccess)
}

func (s *AuthService) parse(raw string, expectedType string) (domains.Principal, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil || !token.Valid {
		return domains.Principal{}, ErrTokenIncorrect
	}
	if claims["type"] != expectedType {
		return domains.Principal{}, ErrTokenIncorrect
	}

	subStr, ok := claims["sub"].(string)
	if !ok {
		return domains.Principal{}, ErrTokenIncorrect
	}
	uid, err := strconv.ParseInt(subStr, 10, 64)
	if err != nil || uid <= 0 {
		return domains.Principal{}, ErrTokenIncorrect
	}

	principal := domains.Principal{UserID: uid}
	principal.Role, _ = claims["role"].(string)
	if org, ok := claims["org"]; ok {
		orgID, err := claimToInt64(org)
		if err != nil {
			return domains.Principal{}, ErrTokenIncorrect
		}
		principal.OrganizationID = &orgID
	}
	return principal, nil
}
