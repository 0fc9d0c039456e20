package models

import "time"

// Department groups extensions in the public directory
type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Color       string    `json:"color"`
	OrderIndex  int       `json:"order_index"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DepartmentPatch holds a partial department update
type DepartmentPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	OrderIndex  *int    `json:"order_index,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// Technician is a field technician listed on the technicians page
type Technician struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	Description string    `json:"description"`
	Region      string    `json:"region"`
	Supervisor  bool      `json:"supervisor"`
	Coordinator bool      `json:"coordinator"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TechnicianPatch holds a partial technician update
type TechnicianPatch struct {
	Name        *string `json:"name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Description *string `json:"description,omitempty"`
	Region      *string `json:"region,omitempty"`
	Supervisor  *bool   `json:"supervisor,omitempty"`
	Coordinator *bool   `json:"coordinator,omitempty"`
}

// AllowedIP is an entry of the admin panel IP allowlist
type AllowedIP struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	Description *string   `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AllowedIPPatch holds a partial allowlist entry update
type AllowedIPPatch struct {
	IP          *string `json:"ip,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}
