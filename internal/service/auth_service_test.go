package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const testSecret = "test-secret"

func newAuth(provider UserProvider) *AuthService {
	s := NewAuthService(provider, testSecret, 15*time.Minute, 7*24*time.Hour)
	s.now = clock(time.Now())
	return s
}

func TestAuthService_RegisterRoles(t *testing.T) {
	tests := []struct {
		name       string
		caller     *domains.Principal
		role       string
		org        *int64
		usersInOrg int
		wantRole   string
		wantErr    error
	}{
		{name: "first user of organization becomes clinician", org: &orgID, usersInOrg: 0, wantRole: domains.RoleClinician},
		{name: "later self sign-up is respondent", org: &orgID, usersInOrg: 2, wantRole: domains.RoleRespondent},
		{name: "no organization is respondent", wantRole: domains.RoleRespondent},
		{name: "clinician may add clinician", caller: &clinician, role: domains.RoleClinician, org: &orgID, usersInOrg: 3, wantRole: domains.RoleClinician},
		{name: "self sign-up cannot claim clinician", role: domains.RoleClinician, org: &orgID, usersInOrg: 3, wantErr: ErrForbidden},
		{name: "admin role needs admin", caller: &clinician, role: domains.RoleAdmin, org: &orgID, usersInOrg: 3, wantErr: ErrForbidden},
		{name: "admin creates admin", caller: &admin, role: domains.RoleAdmin, wantRole: domains.RoleAdmin},
		{name: "clinician outside organization", caller: &outsider, role: domains.RoleRespondent, org: &orgID, wantErr: ErrForbidden},
		{name: "unknown role", role: "superuser", wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(userProviderMock)
			if tt.org != nil {
				provider.On("CountUsersByOrganization", mock.Anything, *tt.org).Return(tt.usersInOrg, nil).Maybe()
			}
			provider.On("SaveUser", mock.Anything, mock.MatchedBy(func(u domains.UserToSave) bool {
				return u.Role == tt.wantRole && u.Email == "ann@example.com"
			})).Return(domains.User{ID: 10, Role: tt.wantRole, Email: "ann@example.com"}, nil).Maybe()

			user, err := newAuth(provider).Register(context.Background(), tt.caller, domains.UserCreate{
				FullName:       "Ann",
				Email:          " Ann@Example.com ",
				Password:       "long-enough",
				Role:           tt.role,
				OrganizationID: tt.org,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				provider.AssertNotCalled(t, "SaveUser", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, user.Role)
			provider.AssertExpectations(t)
		})
	}
}

func TestAuthService_RegisterValidation(t *testing.T) {
	provider := new(userProviderMock)
	auth := newAuth(provider)

	_, err := auth.Register(context.Background(), nil, domains.UserCreate{FullName: "A", Email: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = auth.Register(context.Background(), nil, domains.UserCreate{FullName: "A", Email: "not-an-email", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrValidation)

	provider.On("SaveUser", mock.Anything, mock.Anything).Return(domains.User{}, storage.ErrConflict).Once()
	_, err = auth.Register(context.Background(), nil, domains.UserCreate{FullName: "A", Email: "a@b.c", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthService_LoginAndAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := domains.User{ID: 42, Email: "c@example.com", Role: domains.RoleClinician, OrganizationID: &orgID, PassHash: string(hash)}

	provider := new(userProviderMock)
	provider.On("GetUserByEmail", mock.Anything, "c@example.com").Return(user, nil)
	provider.On("GetUserByEmail", mock.Anything, "nobody@example.com").Return(domains.User{}, storage.ErrNotFound)
	auth := newAuth(provider)

	_, _, err = auth.Login(context.Background(), "c@example.com", "wrong")
	assert.ErrorIs(t, err, ErrPasswordIncorrect)

	_, _, err = auth.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrPasswordIncorrect)

	pair, got, err := auth.Login(context.Background(), "c@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	principal, err := auth.Authenticate(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Equal(t, domains.RoleClinician, principal.Role)
	require.NotNil(t, principal.OrganizationID)
	assert.Equal(t, orgID, *principal.OrganizationID)

	_, err = auth.Authenticate(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenIncorrect)
}

func TestAuthService_LoginDisabled(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	disabledAt := time.Now()

	provider := new(userProviderMock)
	provider.On("GetUserByEmail", mock.Anything, "d@example.com").
		Return(domains.User{ID: 1, PassHash: string(hash), DisabledAt: &disabledAt}, nil)

	_, _, err = newAuth(provider).Login(context.Background(), "d@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestAuthService_Refresh(t *testing.T) {
	user := domains.User{ID: 9, Role: domains.RoleRespondent}
	provider := new(userProviderMock)
	provider.On("GetUserByID", mock.Anything, int64(9)).Return(user, nil)
	auth := newAuth(provider)

	pair, err := auth.GenerateTokens(user)
	require.NoError(t, err)

	_, err = auth.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenIncorrect)

	refreshed, err := auth.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = auth.Refresh(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrTokenIncorrect)

	other := NewAuthService(provider, "another-secret", 0, 0)
	_, err = other.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenIncorrect)
}
