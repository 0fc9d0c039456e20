package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phonebook/internal/models"
)

// Repositories groups the local collections of one context
type Repositories struct {
	Extensions *Extensions
	Queues     *Queues
	Users      *Users
}

// New creates every local collection over the same dependencies
func New(deps Deps) *Repositories {
	return &Repositories{
		Extensions: NewExtensions(deps),
		Queues:     NewQueues(deps),
		Users:      NewUsers(deps),
	}
}

type seedExtension struct {
	number, name, queue string
}

var (
	seedQueues = []models.QueueInput{
		{Name: "Vendas", Description: strPtr("Equipe comercial"), Color: "#3b82f6", Icon: "phone", OrderIndex: 0},
		{Name: "Suporte", Description: strPtr("Atendimento ao cliente"), Color: "#10b981", Icon: "headphones", OrderIndex: 1},
		{Name: "Financeiro", Description: strPtr("Departamento financeiro"), Color: "#f59e0b", Icon: "dollar-sign", OrderIndex: 2},
		{Name: "TI", Description: strPtr("Tecnologia da informação"), Color: "#8b5cf6", Icon: "laptop", OrderIndex: 3},
	}

	seedExtensions = []seedExtension{
		{"1001", "João Silva", "Vendas"},
		{"1002", "Maria Santos", "Vendas"},
		{"2001", "Pedro Oliveira", "Suporte"},
		{"3001", "Ana Costa", "Financeiro"},
		{"4001", "Carlos Lima", "TI"},
	}
)

// SeedAdminEmail is the login of the seeded super admin
const SeedAdminEmail = "admin@empresa.com"

func strPtr(s string) *string { return &s }

// Seed fills an empty store with the starter queues, extensions and
// super admin. It reports whether anything was written. Seeding is not
// audited.
func (r *Repositories) Seed(ctx context.Context) (bool, error) {
	if len(r.Queues.List()) > 0 {
		return false, nil
	}

	now := time.Now().UTC()
	queues := make([]models.Queue, 0, len(seedQueues))
	queueIDs := make(map[string]string, len(seedQueues))
	for _, in := range seedQueues {
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
		queueIDs[q.Name] = q.ID
		queues = append(queues, q)
	}
	if err := r.Queues.ReplaceAll(ctx, queues); err != nil {
		return false, fmt.Errorf("failed to seed queues: %w", err)
	}

	extensions := make([]models.Extension, 0, len(seedExtensions))
	for _, s := range seedExtensions {
		extensions = append(extensions, models.Extension{
			ID:         uuid.New().String(),
			Number:     s.number,
			Name:       s.name,
			Department: s.queue,
			QueueID:    queueIDs[s.queue],
			Status:     models.StatusActive,
			Metadata:   models.ExtensionMetadata{SchemaVersion: models.MetadataSchemaVersion},
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if err := r.Extensions.ReplaceAll(ctx, extensions); err != nil {
		return false, fmt.Errorf("failed to seed extensions: %w", err)
	}

	admin := models.AdminUser{
		ID:        uuid.New().String(),
		FullName:  "Administrador",
		Email:     SeedAdminEmail,
		Role:      models.RoleSuperAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Users.ReplaceAll(ctx, []models.AdminUser{admin}); err != nil {
		return false, fmt.Errorf("failed to seed admin users: %w", err)
	}

	return true, nil
}
