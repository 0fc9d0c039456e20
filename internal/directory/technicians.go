package directory

import (
	"strings"

	"github.com/foxzi/phonebook/internal/models"
)

// TechnicianListing is the public field technician page, split by role.
// Coordinators are listed only under Coordinators even when also flagged
// as supervisors.
type TechnicianListing struct {
	Total        int                 `json:"total"`
	Coordinators []models.Technician `json:"coordinators"`
	Supervisors  []models.Technician `json:"supervisors"`
	Technicians  []models.Technician `json:"technicians"`
}

// SearchTechnicians keeps technicians whose name, phone, description or
// region contains query, case-insensitively
func SearchTechnicians(list []models.Technician, query string) []models.Technician {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Technician, 0, len(list))
	if q == "" {
		return append(out, list...)
	}
	for _, t := range list {
		switch {
		case strings.Contains(strings.ToLower(t.Name), q),
			strings.Contains(t.Phone, q),
			strings.Contains(strings.ToLower(t.Description), q),
			strings.Contains(strings.ToLower(t.Region), q):
			out = append(out, t)
		}
	}
	return out
}

// GroupTechnicians partitions list by role, keeping input order
func GroupTechnicians(list []models.Technician) TechnicianListing {
	l := TechnicianListing{
		Total:        len(list),
		Coordinators: []models.Technician{},
		Supervisors:  []models.Technician{},
		Technicians:  []models.Technician{},
	}
	for _, t := range list {
		switch {
		case t.Coordinator:
			l.Coordinators = append(l.Coordinators, t)
		case t.Supervisor:
			l.Supervisors = append(l.Supervisors, t)
		default:
			l.Technicians = append(l.Technicians, t)
		}
	}
	return l
}
