package roles

import (
	"context"

	"github.com/google/uuid"
	"github.com/maingoo/auth-service/models"
	"github.com/maingoo/auth-service/repositories"
	"go.uber.org/zap"
)

const listKey = "list"

// Catalog serves role reads through the cache. Roles are reference data
// written only by seeding, so staleness is bounded by the cache TTL.
type Catalog struct {
	roleRepo repositories.RoleRepository
	cache    *Cache
	logger   *zap.Logger
}

// NewCatalog creates a new Catalog instance
func NewCatalog(roleRepo repositories.RoleRepository, cache *Cache, logger *zap.Logger) *Catalog {
	return &Catalog{
		roleRepo: roleRepo,
		cache:    cache,
		logger:   logger,
	}
}

// List returns all roles ordered by name
func (c *Catalog) List(ctx context.Context) ([]*models.Role, error) {
	if roles, ok := c.cache.Get(listKey); ok {
		return roles, nil
	}

	roles, err := c.roleRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.Set(listKey, roles)
	c.logger.Debug("role list cached", zap.Int("count", len(roles)))
	return roles, nil
}

// GetByName returns the role named name. Misses are not cached.
func (c *Catalog) GetByName(ctx context.Context, name string) (*models.Role, error) {
	key := "name:" + name
	if roles, ok := c.cache.Get(key); ok {
		return roles[0], nil
	}

	role, err := c.roleRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, []*models.Role{role})
	return role, nil
}

// GetByID returns the role with id. Misses are not cached.
func (c *Catalog) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	key := "id:" + id.String()
	if roles, ok := c.cache.Get(key); ok {
		return roles[0], nil
	}

	role, err := c.roleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Set(key, []*models.Role{role})
	return role, nil
}

// Invalidate drops every cached entry
func (c *Catalog) Invalidate() {
	c.cache.Clear()
}
