package service

import (
	"context"

	"mindtrack/internal/domains"
)

type UserService struct {
	provider UserDirectory
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, id int64) (domains.User, error)
	ListUsersByOrganization(ctx context.Context, organizationID int64) ([]domains.User, error)
}

func NewUserService(provider UserDirectory) *UserService {
	return &UserService{
		provider: provider,
	}
}

// ListByOrganization returns the members of an organization to its managers.
func (u *UserService) ListByOrganization(ctx context.Context, caller domains.Principal, organizationID int64) ([]domains.User, error) {
	if !caller.CanManage() || !caller.InOrganization(organizationID) {
		return nil, ErrForbidden
	}
	users, err := u.provider.ListUsersByOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (u *UserService) Get(ctx context.Context, caller domains.Principal, id int64) (domains.User, error) {
	user, err := u.provider.GetUserByID(ctx, id)
	if err != nil {
		return domains.User{}, err
	}
	if user.ID == caller.UserID {
		return user, nil
	}
	if !caller.CanManage() || user.OrganizationID == nil || !caller.InOrganization(*user.OrganizationID) {
		return domains.User{}, ErrForbidden
	}
	return user, nil
}
