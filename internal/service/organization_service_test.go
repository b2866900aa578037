package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

type organizationProviderMock struct {
	mock.Mock
}

func (m *organizationProviderMock) SaveOrganization(ctx context.Context, org domains.OrganizationCreate) (domains.Organization, error) {
	args := m.Called(ctx, org)
	return args.Get(0).(domains.Organization), args.Error(1)
}

func (m *organizationProviderMock) GetOrganization(ctx context.Context, id int64) (domains.Organization, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domains.Organization), args.Error(1)
}

func (m *organizationProviderMock) ListOrganizations(ctx context.Context) ([]domains.Organization, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domains.Organization), args.Error(1)
}

func (m *organizationProviderMock) UpdateOrganization(ctx context.Context, id int64, update domains.OrganizationUpdate) (domains.Organization, error) {
	args := m.Called(ctx, id, update)
	return args.Get(0).(domains.Organization), args.Error(1)
}

func (m *organizationProviderMock) DeleteOrganization(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func TestOrganizationService_Create(t *testing.T) {
	ctx := context.Background()
	provider := new(organizationProviderMock)
	svc := NewOrganizationService(provider)

	_, err := svc.Create(ctx, clinician, domains.OrganizationCreate{Name: "Clinic"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Create(ctx, admin, domains.OrganizationCreate{Name: " "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, admin, domains.OrganizationCreate{Name: "Clinic", Slug: "Bad Slug"})
	assert.ErrorIs(t, err, ErrValidation)

	provider.On("SaveOrganization", mock.Anything, domains.OrganizationCreate{Name: "North Side Clinic", Slug: "north-side-clinic"}).
		Return(domains.Organization{ID: 11, Name: "North Side Clinic", Slug: "north-side-clinic"}, nil).Once()
	org, err := svc.Create(ctx, admin, domains.OrganizationCreate{Name: "  North Side Clinic! "})
	require.NoError(t, err)
	assert.Equal(t, int64(11), org.ID)

	provider.On("SaveOrganization", mock.Anything, mock.Anything).Return(domains.Organization{}, storage.ErrConflict).Once()
	_, err = svc.Create(ctx, admin, domains.OrganizationCreate{Name: "North Side Clinic"})
	assert.ErrorIs(t, err, ErrValidation)

	provider.AssertExpectations(t)
}

func TestOrganizationService_Access(t *testing.T) {
	ctx := context.Background()
	provider := new(organizationProviderMock)
	provider.On("GetOrganization", mock.Anything, orgID).Return(domains.Organization{ID: orgID, Name: "Calm Clinic"}, nil)
	provider.On("ListOrganizations", mock.Anything).Return([]domains.Organization{{ID: orgID}, {ID: otherOrgID}}, nil)
	svc := NewOrganizationService(provider)

	_, err := svc.Get(ctx, outsider, orgID)
	assert.ErrorIs(t, err, ErrForbidden)

	org, err := svc.Get(ctx, respondent, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Calm Clinic", org.Name)

	own, err := svc.List(ctx, clinician)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, orgID, own[0].ID)

	all, err := svc.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Update(ctx, respondent, orgID, domains.OrganizationUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Update(ctx, clinician, orgID, domains.OrganizationUpdate{Name: ptr(" ")})
	assert.ErrorIs(t, err, ErrValidation)

	assert.ErrorIs(t, svc.Delete(ctx, clinician, orgID), ErrForbidden)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "calm-clinic", slugify("Calm Clinic"))
	assert.Equal(t, "st-mary-s-2", slugify("  St. Mary's #2 "))
	assert.Equal(t, "", slugify("!!!"))
}

type userDirectoryStub map[int64]domains.User

func (s userDirectoryStub) GetUserByID(_ context.Context, id int64) (domains.User, error) {
	u, ok := s[id]
	if !ok {
		return domains.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s userDirectoryStub) ListUsersByOrganization(_ context.Context, organizationID int64) ([]domains.User, error) {
	var out []domains.User
	for _, u := range s {
		if u.OrganizationID != nil && *u.OrganizationID == organizationID {
			out = append(out, u)
		}
	}
	return out, nil
}

func TestUserService(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(userDirectoryStub{
		3: {ID: 3, OrganizationID: &orgID, Role: domains.RoleClinician},
		5: {ID: 5, OrganizationID: &orgID, Role: domains.RoleRespondent},
	})

	self, err := svc.Get(ctx, respondent, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), self.ID)

	_, err = svc.Get(ctx, respondent, 3)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, outsider, 5)
	assert.ErrorIs(t, err, ErrForbidden)

	members, err := svc.ListByOrganization(ctx, clinician, orgID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = svc.ListByOrganization(ctx, respondent, orgID)
	assert.ErrorIs(t, err, ErrForbidden)
}
