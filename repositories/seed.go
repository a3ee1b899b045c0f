package repositories

import (
	"context"
	"fmt"

	"github.com/maingoo/auth-service/models"
)

// RoleSeed describes a role and the permission names granted to it.
// A nil Permissions slice grants the full catalog.
type RoleSeed struct {
	Name        string
	Description string
	Permissions []string
}

// Catalog is the reference data provisioned by Seed
type Catalog struct {
	Permissions []models.Permission
	Roles       []RoleSeed
}

// DefaultCatalog returns the roles and permissions every deployment starts with
func DefaultCatalog() Catalog {
	var perms []models.Permission
	for _, resource := range []string{"users", "invoices", "suppliers"} {
		for _, action := range []string{"read", "write", "delete"} {
			perms = append(perms, models.Permission{
				Name:        resource + "." + action,
				Description: fmt.Sprintf("%s %s", action, resource),
			})
		}
	}

	return Catalog{
		Permissions: perms,
		Roles: []RoleSeed{
			{Name: models.RoleAdmin, Description: "Full access"},
			{Name: models.RoleEmployee, Description: "Read access to invoices and suppliers",
				Permissions: []string{"invoices.read", "suppliers.read"}},
		},
	}
}

// Seed provisions the catalog inside one transaction. Running it again is a no-op.
func Seed(ctx context.Context, tm TransactionManager, repos *Repositories, catalog Catalog) error {
	return tm.InTransaction(ctx, func(ctx context.Context, _ Transaction) error {
		for _, p := range catalog.Permissions {
			if _, err := repos.Permissions.Upsert(ctx, models.NewPermission(p.Name, p.Description)); err != nil {
				return fmt.Errorf("seed permission %s: %w", p.Name, err)
			}
		}

		for _, rs := range catalog.Roles {
			role, err := repos.Roles.Upsert(ctx, models.NewRole(rs.Name, rs.Description))
			if err != nil {
				return fmt.Errorf("seed role %s: %w", rs.Name, err)
			}

			names := rs.Permissions
			if names == nil {
				names = []string{}
			}
			perms, err := repos.Permissions.ListByNames(ctx, names)
			if err != nil {
				return fmt.Errorf("seed role %s: %w", rs.Name, err)
			}
			if len(names) > 0 && len(perms) != len(names) {
				return fmt.Errorf("seed role %s: %d of %d permissions found: %w",
					rs.Name, len(perms), len(names), ErrNotFound)
			}

			for _, p := range perms {
				if err := repos.Permissions.Assign(ctx, role.ID, p.ID); err != nil {
					return fmt.Errorf("seed role %s: %w", rs.Name, err)
				}
			}
		}
		return nil
	})
}
