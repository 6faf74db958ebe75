package models

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a bit flag granted by a Role.
type Permission int

const (
	PermFollow   Permission = 1
	PermComment  Permission = 2
	PermWrite    Permission = 4
	PermModerate Permission = 8
	PermAdmin    Permission = 16
)

var permissionNames = map[string]Permission{
	"FOLLOW":   PermFollow,
	"COMMENT":  PermComment,
	"WRITE":    PermWrite,
	"MODERATE": PermModerate,
	"ADMIN":    PermAdmin,
}

// ParsePermission maps a permission name (case-insensitive) to its flag.
func ParsePermission(name string) (Permission, error) {
	p, ok := permissionNames[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown permission %q", name)
	}
	return p, nil
}

// Names returns the names of the flags set in p, sorted by flag value.
func (p Permission) Names() []string {
	out := make([]string, 0, len(permissionNames))
	for name, flag := range permissionNames {
		if p&flag == flag {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return permissionNames[out[i]] < permissionNames[out[j]]
	})
	return out
}

func (p Permission) String() string {
	return strings.Join(p.Names(), "|")
}

// Well-known role names.
const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

// Role is a named permission bundle. Exactly one role is the default role
// assigned to new users.
type Role struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"size:64;uniqueIndex;not null" json:"name"`
	IsDefault   bool       `gorm:"column:is_default;index;not null;default:false" json:"is_default"`
	Permissions Permission `gorm:"not null;default:0" json:"permissions"`
}

// TableName specifies the table name for GORM
func (Role) TableName() string {
	return "roles"
}

func (r *Role) HasPermission(perm Permission) bool {
	return r.Permissions&perm == perm
}

func (r *Role) AddPermission(perm Permission) {
	if !r.HasPermission(perm) {
		r.Permissions |= perm
	}
}

func (r *Role) RemovePermission(perm Permission) {
	if r.HasPermission(perm) {
		r.Permissions &^= perm
	}
}

func (r *Role) ResetPermissions() {
	r.Permissions = 0
}
