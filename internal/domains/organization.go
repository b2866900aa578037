package domains

import "time"

type Organization struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Slug      string     `json:"slug" db:"slug"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

type OrganizationCreate struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type OrganizationUpdate struct {
	Name *string `json:"name,omitempty"`
}
