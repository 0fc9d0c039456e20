// Package repository implements the local extension, queue and admin user
// collections on top of the shared record store.
package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/phonebook/internal/audit"
	"github.com/foxzi/phonebook/internal/broadcast"
	"github.com/foxzi/phonebook/internal/metrics"
	"github.com/foxzi/phonebook/internal/models"
	"github.com/foxzi/phonebook/internal/session"
	"github.com/foxzi/phonebook/internal/store"
)

// Deps are the collaborators shared by every collection
type Deps struct {
	Store       store.Store
	Broadcaster broadcast.Broadcaster
	Audit       *audit.Logger
	Logger      *slog.Logger
}

// accessors bind a record type to the generic collection
type accessors[T any] struct {
	id        func(*T) string
	updatedAt func(*T) time.Time
	touch     func(*T, time.Time)
}

// collection is the read-modify-write core shared by the repositories.
// The key doubles as event type and audit entity type.
type collection[T any] struct {
	key string
	acc accessors[T]
	Deps

	mu  sync.Mutex
	now func() time.Time
}

func newCollection[T any](key string, deps Deps, acc accessors[T]) *collection[T] {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &collection[T]{
		key:  key,
		acc:  acc,
		Deps: deps,
		now:  time.Now,
	}
}

func (c *collection[T]) list() []T {
	return store.Load(c.Store, c.key, []T{})
}

func (c *collection[T]) get(id string) (*T, bool) {
	items := c.list()
	for i := range items {
		if c.acc.id(&items[i]) == id {
			return &items[i], true
		}
	}
	return nil, false
}

// stamp returns a timestamp strictly after prev
func (c *collection[T]) stamp(prev time.Time) time.Time {
	t := c.now().UTC()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func (c *collection[T]) save(items []T) error {
	if err := store.Save(c.Store, c.key, items); err != nil {
		metrics.IncStoreError(c.key)
		c.Logger.Error("failed to persist collection", "collection", c.key, "error", err)
		return err
	}
	return nil
}

func (c *collection[T]) publish(ctx context.Context) {
	if c.Broadcaster == nil {
		return
	}
	if err := c.Broadcaster.Publish(ctx, broadcast.Changed(c.key)); err != nil {
		c.Logger.Warn("failed to publish change", "collection", c.key, "error", err)
	}
}

func (c *collection[T]) record(ctx context.Context, sess *session.Session, action models.AuditAction, id string, oldData, newData *T) {
	metrics.IncMutation(c.key, string(action))
	if c.Audit == nil {
		return
	}
	c.Audit.Log(ctx, sess, action, c.key, id, oldData, newData)
}

// replaceAll overwrites the collection and notifies other contexts
func (c *collection[T]) replaceAll(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}

	c.mu.Lock()
	err := c.save(items)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.publish(ctx)
	return nil
}

// insert appends item, which must already carry its id and timestamps
func (c *collection[T]) insert(ctx context.Context, sess *session.Session, item T) (*T, error) {
	c.mu.Lock()
	items := append(c.list(), item)
	err := c.save(items)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.publish(ctx)
	c.record(ctx, sess, models.ActionCreate, c.acc.id(&item), nil, &item)
	return &item, nil
}

// modify applies mutate to the record with the given id. It returns nil
// without side effects when no such record exists. The id and creation
// time survive mutate; updated_at is refreshed.
func (c *collection[T]) modify(ctx context.Context, sess *session.Session, id string, mutate func(*T)) (*T, error) {
	updated, old, err := c.rewrite(id, func(item *T) {
		mutate(item)
		c.acc.touch(item, c.stamp(c.acc.updatedAt(item)))
	})
	if err != nil || updated == nil {
		return nil, err
	}

	c.publish(ctx)
	c.record(ctx, sess, models.ActionUpdate, id, old, updated)
	return updated, nil
}

// rewrite replaces one record in place under the collection lock and
// returns the new and previous versions
func (c *collection[T]) rewrite(id string, mutate func(*T)) (*T, *T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := c.list()
	idx := -1
	for i := range items {
		if c.acc.id(&items[i]) == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, nil, nil
	}

	old := items[idx]
	next := old
	mutate(&next)
	items[idx] = next

	if err := c.save(items); err != nil {
		return nil, nil, err
	}
	return &next, &old, nil
}

// remove deletes the record with the given id and reports whether it existed
func (c *collection[T]) remove(ctx context.Context, sess *session.Session, id string) (bool, error) {
	c.mu.Lock()
	items := c.list()
	var removed *T
	kept := make([]T, 0, len(items))
	for i := range items {
		if removed == nil && c.acc.id(&items[i]) == id {
			r := items[i]
			removed = &r
			continue
		}
		kept = append(kept, items[i])
	}
	if removed == nil {
		c.mu.Unlock()
		return false, nil
	}
	err := c.save(kept)
	c.mu.Unlock()
	if err != nil {
		return false, err
	}

	c.publish(ctx)
	c.record(ctx, sess, models.ActionDelete, id, removed, nil)
	return true, nil
}
