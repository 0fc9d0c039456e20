// Package directory builds the public extension listing: free-text
// search, grouping by queue or department, and summary statistics.
package directory

import (
	"sort"
	"strings"

	"github.com/foxzi/phonebook/internal/models"
)

// Grouping selects how a listing is partitioned
type Grouping string

const (
	GroupByQueue      Grouping = "queue"
	GroupByDepartment Grouping = "department"
)

// ParseGrouping maps a query value to a Grouping, defaulting to queue
func ParseGrouping(s string) (Grouping, bool) {
	switch Grouping(strings.ToLower(strings.TrimSpace(s))) {
	case "", GroupByQueue:
		return GroupByQueue, true
	case GroupByDepartment:
		return GroupByDepartment, true
	}
	return "", false
}

// Group is one section of a listing
type Group struct {
	Queue      *models.Queue      `json:"queue,omitempty"`
	Department string             `json:"department,omitempty"`
	Extensions []models.Extension `json:"extensions"`
}

// Listing is the result of a directory query
type Listing struct {
	Query     string             `json:"query,omitempty"`
	Grouping  Grouping           `json:"grouping"`
	Total     int                `json:"total"`
	Groups    []Group            `json:"groups"`
	Ungrouped []models.Extension `json:"ungrouped"`
}

// Stats summarizes the extensions of the directory
type Stats struct {
	Total        int            `json:"total"`
	Active       int            `json:"active"`
	Inactive     int            `json:"inactive"`
	Maintenance  int            `json:"maintenance"`
	Departments  int            `json:"departments"`
	ByDepartment map[string]int `json:"by_department"`
	Supervisors  int            `json:"supervisors"`
	Coordinators int            `json:"coordinators"`
}

// Leaders lists the extensions flagged as supervisors or coordinators
type Leaders struct {
	Supervisors  []models.Extension `json:"supervisors"`
	Coordinators []models.Extension `json:"coordinators"`
}

// Directory answers listing queries over the current snapshots
type Directory struct {
	extensions func() []models.Extension
	queues     func() []models.Queue
}

// New creates a directory reading snapshots from the given accessors
func New(extensions func() []models.Extension, queues func() []models.Queue) *Directory {
	if queues == nil {
		queues = func() []models.Queue { return nil }
	}
	return &Directory{extensions: extensions, queues: queues}
}

// Queues returns the queues in display order
func (d *Directory) Queues() []models.Queue {
	return ordered(d.queues())
}

// List filters by query and groups the result
func (d *Directory) List(query string, by Grouping) Listing {
	queues := ordered(d.queues())
	matched := Search(d.extensions(), queues, query)

	l := Listing{
		Query:     strings.TrimSpace(query),
		Grouping:  by,
		Total:     len(matched),
		Ungrouped: []models.Extension{},
	}
	if by == GroupByDepartment {
		l.Groups = ByDepartment(matched)
	} else {
		l.Grouping = GroupByQueue
		l.Groups, l.Ungrouped = ByQueue(matched, queues)
	}
	return l
}

// Stats computes the summary over all extensions
func (d *Directory) Stats() Stats {
	return ComputeStats(d.extensions())
}

// Leaders returns the supervisors and coordinators
func (d *Directory) Leaders() Leaders {
	return FindLeaders(d.extensions())
}

// Search keeps extensions whose name, number, department or queue name
// contains query, case-insensitively. An empty query matches everything.
func Search(exts []models.Extension, queues []models.Queue, query string) []models.Extension {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Extension, 0, len(exts))
	if q == "" {
		return append(out, exts...)
	}

	queueNames := make(map[string]string, len(queues))
	for _, qu := range queues {
		queueNames[qu.ID] = strings.ToLower(qu.Name)
	}

	for _, e := range exts {
		switch {
		case strings.Contains(strings.ToLower(e.Name), q),
			strings.Contains(e.Number, q),
			strings.Contains(strings.ToLower(e.Department), q),
			e.QueueID != "" && strings.Contains(queueNames[e.QueueID], q):
			out = append(out, e)
		}
	}
	return out
}

// ByQueue partitions extensions by queue, in queue order. Empty queues
// are omitted. Extensions without a known queue are returned separately.
func ByQueue(exts []models.Extension, queues []models.Queue) ([]Group, []models.Extension) {
	index := make(map[string]int, len(queues))
	buckets := make([][]models.Extension, len(queues))
	for i, q := range queues {
		index[q.ID] = i
	}

	ungrouped := []models.Extension{}
	for _, e := range exts {
		i, ok := index[e.QueueID]
		if e.QueueID == "" || !ok {
			ungrouped = append(ungrouped, e)
			continue
		}
		buckets[i] = append(buckets[i], e)
	}

	groups := []Group{}
	for i := range queues {
		if len(buckets[i]) == 0 {
			continue
		}
		q := queues[i]
		groups = append(groups, Group{Queue: &q, Extensions: buckets[i]})
	}
	return groups, ungrouped
}

// ByDepartment partitions extensions by department name in alphabetical
// order. Extensions without a department form a trailing unnamed group.
func ByDepartment(exts []models.Extension) []Group {
	buckets := make(map[string][]models.Extension)
	for _, e := range exts {
		name := strings.TrimSpace(e.Department)
		buckets[name] = append(buckets[name], e)
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})

	groups := make([]Group, 0, len(buckets))
	for _, name := range names {
		groups = append(groups, Group{Department: name, Extensions: buckets[name]})
	}
	if rest, ok := buckets[""]; ok {
		groups = append(groups, Group{Extensions: rest})
	}
	return groups
}

// ComputeStats counts extensions by status and department
func ComputeStats(exts []models.Extension) Stats {
	s := Stats{Total: len(exts), ByDepartment: make(map[string]int)}
	for _, e := range exts {
		switch e.Status {
		case models.StatusActive:
			s.Active++
		case models.StatusInactive:
			s.Inactive++
		case models.StatusMaintenance:
			s.Maintenance++
		}
		if e.Department != "" {
			s.ByDepartment[e.Department]++
		}
		if e.Metadata.Supervisor {
			s.Supervisors++
		}
		if e.Metadata.Coordinator {
			s.Coordinators++
		}
	}
	s.Departments = len(s.ByDepartment)
	return s
}

// FindLeaders selects flagged extensions, keeping input order
func FindLeaders(exts []models.Extension) Leaders {
	l := Leaders{Supervisors: []models.Extension{}, Coordinators: []models.Extension{}}
	for _, e := range exts {
		if e.Metadata.Supervisor {
			l.Supervisors = append(l.Supervisors, e)
		}
		if e.Metadata.Coordinator {
			l.Coordinators = append(l.Coordinators, e)
		}
	}
	return l
}

func ordered(queues []models.Queue) []models.Queue {
	out := append([]models.Queue(nil), queues...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}
