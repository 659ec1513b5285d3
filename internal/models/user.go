package models

import "time"

// User is the system-of-record user row. The primary key is the Keycloak
// subject identifier; email doubles as a natural key so a recreated Keycloak
// account can be matched back to its local record.
type User struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `gorm:"uniqueIndex" json:"email" validate:"required,email"`
	Active    bool      `gorm:"default:true" json:"active"`
	Role      Role      `gorm:"type:varchar(32)" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// DirectoryUser is one entry of the merged admin listing: the Keycloak user
// record annotated with the locally stored role.
type DirectoryUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Enabled   bool   `json:"enabled"`
	Role      string `json:"role"`
}

// NoRole marks directory entries with no matching local record.
const NoRole = "AUCUN"

type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,min=1,max=255"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"required,min=1,max=255"`
	LastName  string `json:"lastName" validate:"required,min=1,max=255"`
	Password  string `json:"password,omitempty" validate:"omitempty,min=8"`
	Role      string `json:"role,omitempty"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName" validate:"required,min=1,max=255"`
	LastName  string `json:"lastName" validate:"required,min=1,max=255"`
	Email     string `json:"email" validate:"required,email"`
}

type UpdatePasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}
