package models

import "time"

// User represents a registered account.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:64;uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:128" json:"-"`
	Confirmed    bool      `gorm:"not null;default:false" json:"confirmed"`
	RoleID       *uint     `gorm:"index" json:"role_id,omitempty"`
	Role         *Role     `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Can reports whether the user's role grants perm. Users without a loaded
// role have no permissions.
func (u *User) Can(perm Permission) bool {
	return u.Role != nil && u.Role.HasPermission(perm)
}

// IsAdministrator reports whether the user holds the ADMIN permission.
func (u *User) IsAdministrator() bool {
	return u.Can(PermAdmin)
}
