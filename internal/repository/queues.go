package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// Queues is the local queue collection
type Queues struct {
	c *collection[models.Queue]
}

// NewQueues creates the queue repository
func NewQueues(deps Deps) *Queues {
	return &Queues{c: newCollection(store.KeyQueues, deps, accessors[models.Queue]{
		id:        func(q *models.Queue) string { return q.ID },
		updatedAt: func(q *models.Queue) time.Time { return q.UpdatedAt },
		touch:     func(q *models.Queue, t time.Time) { q.UpdatedAt = t },
	})}
}

// List returns every queue in storage order
func (r *Queues) List() []models.Queue {
	return r.c.list()
}

// Ordered returns every queue sorted by order_index
func (r *Queues) Ordered() []models.Queue {
	queues := r.c.list()
	sort.SliceStable(queues, func(i, j int) bool {
		return queues[i].OrderIndex < queues[j].OrderIndex
	})
	return queues
}

// Get returns the queue with the given id
func (r *Queues) Get(id string) (*models.Queue, bool) {
	return r.c.get(id)
}

// ReplaceAll overwrites the collection without recording an audit entry
func (r *Queues) ReplaceAll(ctx context.Context, list []models.Queue) error {
	return r.c.replaceAll(ctx, list)
}

// Add creates a queue
func (r *Queues) Add(ctx context.Context, sess *session.Session, in models.QueueInput) (*models.Queue, error) {
	now := r.c.now().UTC()
	q := models.Queue{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Color:       in.Color,
		Icon:        in.Icon,
		OrderIndex:  in.OrderIndex,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r.c.insert(ctx, sess, q)
}

// Update merges patch into the queue with the given id. It returns
// nil, nil when the queue does not exist.
func (r *Queues) Update(ctx context.Context, sess *session.Session, id string, patch models.QueuePatch) (*models.Queue, error) {
	return r.c.modify(ctx, sess, id, patch.Apply)
}

// Delete removes the queue with the given id. Extensions referencing it
// keep their queue_id.
func (r *Queues) Delete(ctx context.Context, sess *session.Session, id string) (bool, error) {
	return r.c.remove(ctx, sess, id)
}
