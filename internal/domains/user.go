package domains

import (
	"time"
)

const (
	RoleAdmin      = "admin"
	RoleClinician  = "clinician"
	RoleRespondent = "respondent"
)

type User struct {
	ID             int64      `json:"id" db:"id"`
	OrganizationID *int64     `json:"organization_id,omitempty" db:"organization_id"`
	FullName       string     `json:"full_name" db:"full_name"`
	Email          string     `json:"email" db:"email"`
	Role           string     `json:"role" db:"role"`
	PassHash       string     `json:"-" db:"passhash"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	DisabledAt     *time.Time `json:"disabled_at,omitempty" db:"disabled_at"`
}

type UserCreate struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
}

type UserToSave struct {
	FullName       string
	Email          string
	PassHash       string
	Role           string
	OrganizationID *int64
}

// Principal is the authenticated caller extracted from an access token.
type Principal struct {
	UserID         int64
	Role           string
	OrganizationID *int64
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) CanManage() bool {
	return p.Role == RoleAdmin || p.Role == RoleClinician
}

// InOrganization reports whether the caller may act inside orgID. Admins may act anywhere.
func (p Principal) InOrganization(orgID int64) bool {
	if p.IsAdmin() {
		return true
	}
	return p.OrganizationID != nil && *p.OrganizationID == orgID
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}
