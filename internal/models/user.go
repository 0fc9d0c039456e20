package models

import "time"

// UserRole is the permission level of an admin user
type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin"
	RoleAdmin      UserRole = "admin"
	RoleModerator  UserRole = "moderator"
)

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// SIPConfig holds the softphone settings attached to an admin user
type SIPConfig struct {
	Name     string `json:"name,omitempty"`
	Server   string `json:"server,omitempty"`
	Username string `json:"username,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Login    string `json:"login,omitempty"`
	Password string `json:"password,omitempty"`
	Port     int    `json:"port,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// AdminUser is an operator of the admin panel
type AdminUser struct {
	ID        string     `json:"id"`
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	LastLogin *time.Time `json:"last_login"`
	SIPConfig *SIPConfig `json:"sip_config,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AdminUserInput holds the caller-supplied fields of a new admin user
type AdminUserInput struct {
	FullName  string     `json:"full_name"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	SIPConfig *SIPConfig `json:"sip_config,omitempty"`
}

// AdminUserPatch holds a partial update; nil fields are left unchanged
type AdminUserPatch struct {
	FullName  *string    `json:"full_name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Role      *UserRole  `json:"role,omitempty"`
	SIPConfig *SIPConfig `json:"sip_config,omitempty"`
}

// Apply merges the patch into u
func (p AdminUserPatch) Apply(u *AdminUser) {
	if p.FullName != nil {
		u.FullName = *p.FullName
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.SIPConfig != nil {
		sc := *p.SIPConfig
		u.SIPConfig = &sc
	}
}
