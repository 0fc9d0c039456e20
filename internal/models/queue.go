package models

import "time"

// Queue is a named grouping of extensions with display attributes
type Queue struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon"`
	OrderIndex  int       `json:"order_index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueueInput holds the caller-supplied fields of a new queue
type QueueInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Color       string  `json:"color"`
	Icon        string  `json:"icon"`
	OrderIndex  int     `json:"order_index"`
}

// QueuePatch holds a partial update; nil fields are left unchanged
type QueuePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	OrderIndex  *int    `json:"order_index,omitempty"`
}

// Apply merges the patch into q
func (p QueuePatch) Apply(q *Queue) {
	if p.Name != nil {
		q.Name = *p.Name
	}
	if p.Description != nil {
		d := *p.Description
		q.Description = &d
	}
	if p.Color != nil {
		q.Color = *p.Color
	}
	if p.Icon != nil {
		q.Icon = *p.Icon
	}
	if p.OrderIndex != nil {
		q.OrderIndex = *p.OrderIndex
	}
}
